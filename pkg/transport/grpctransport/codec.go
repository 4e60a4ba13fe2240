// Package grpctransport carries gossip requests over gRPC. Messages are the
// gossip package's structs encoded with a JSON codec, so no generated stubs
// are needed: the service descriptor is declared by hand.
package grpctransport

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

const codecName = "gossip-json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (jsonCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
