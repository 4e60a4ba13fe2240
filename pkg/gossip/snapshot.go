package gossip

import (
	"encoding/json"
	"fmt"
)

const snapshotVersion = 1

// SnapshotWriter receives serialized peer lists. Writes are best effort:
// the controller logs failures and carries on.
type SnapshotWriter interface {
	Write(data []byte) error
}

// Snapshot is the persisted form of a PeerList.
type Snapshot struct {
	Version int          `json:"version"`
	Local   string       `json:"local"`
	Peers   []PeerRecord `json:"peers"`
}

func EncodeSnapshot(local string, peers []PeerRecord) ([]byte, error) {
	data, err := json.Marshal(Snapshot{Version: snapshotVersion, Local: local, Peers: peers})
	if err != nil {
		return nil, fmt.Errorf("encode peer snapshot: %w", err)
	}
	return data, nil
}

func DecodeSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("decode peer snapshot: %w", err)
	}
	if s.Version != snapshotVersion {
		return Snapshot{}, fmt.Errorf("decode peer snapshot: unsupported version %d", s.Version)
	}
	return s, nil
}
