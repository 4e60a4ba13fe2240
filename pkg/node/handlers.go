package node

import (
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/ryandielhenn/zephyrgossip/pkg/gossip"
)

// Healthz returns 200 OK to indicate the Node is alive.
func (n *Node) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type memberView struct {
	Endpoint   string       `json:"endpoint"`
	State      gossip.State `json:"state"`
	Generation int64        `json:"generation"`
	Version    int64        `json:"version"`
	ChangedAt  time.Time    `json:"changed_at"`
	Local      bool         `json:"local,omitempty"`
}

// Info writes the local record and peer counts.
func (n *Node) Info(w http.ResponseWriter, req *http.Request) {
	type resp struct {
		PID     int        `json:"pid"`
		Now     time.Time  `json:"now"`
		Self    memberView `json:"self"`
		Alive   int        `json:"alive"`
		Suspect int        `json:"suspect"`
		Dead    int        `json:"dead"`
	}
	out := resp{PID: os.Getpid(), Now: time.Now()}
	err := n.members.Query(req.Context(), func(l *gossip.PeerList) {
		out.Self = viewOf(l.Local())
		out.Alive, out.Suspect, out.Dead = l.Count()
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, out)
}

// Members lists every known peer in endpoint order. ?state= filters by
// state (ALIVE, SUSPECT, DEAD).
func (n *Node) Members(w http.ResponseWriter, req *http.Request) {
	var filter *gossip.State
	if s := req.URL.Query().Get("state"); s != "" {
		var st gossip.State
		if err := st.UnmarshalText([]byte(s)); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		filter = &st
	}

	var out []memberView
	err := n.members.Query(req.Context(), func(l *gossip.PeerList) {
		out = make([]memberView, 0, l.Len())
		for i := 0; i < l.Len(); i++ {
			p := l.At(i)
			if filter != nil && p.State != *filter {
				continue
			}
			out = append(out, viewOf(p))
		}
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, out)
}

// Partitions reports placement. With ?key= it returns the replica set of
// that key, otherwise the replica set of every partition.
func (n *Node) Partitions(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	rf := n.rf
	if s := q.Get("n"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			http.Error(w, "invalid n", http.StatusBadRequest)
			return
		}
		rf = v
	}

	if key := q.Get("key"); key != "" {
		owners := n.ring.LookupN([]byte(key), rf)
		if len(owners) == 0 {
			http.Error(w, "no alive members", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, map[string]any{"key": key, "owners": owners})
		return
	}

	type partition struct {
		ID     uint32   `json:"id"`
		Owners []string `json:"owners"`
	}
	out := make([]partition, 0, n.partitions)
	for p := 0; p < n.partitions; p++ {
		out = append(out, partition{ID: uint32(p), Owners: n.ring.PartitionOwners(uint32(p), rf)})
	}
	writeJSON(w, out)
}

func viewOf(p *gossip.Peer) memberView {
	return memberView{
		Endpoint:   p.Endpoint,
		State:      p.State,
		Generation: p.Incarnation.Generation,
		Version:    p.Incarnation.Version,
		ChangedAt:  p.ChangeStateTime,
		Local:      p.Local,
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}
