// Package storage holds concerns shared by every core.Driver backend:
// JSON encoding helpers for the map/set-valued fields core.MemoryRecord and
// core.AgentEvent carry, and the shared logical table layout.
//
// Grounded on the teacher's pkg/storage/base.go (single shared package for
// all backends to depend on); the interface itself now lives as core.Driver
// in pkg/core/driver.go so backend packages can import core without a
// cycle back into core.
package storage

import (
	"encoding/json"

	"github.com/mnemohq/mnemo/pkg/core"
)

// EncodeMetadata serializes a metadata map to JSON text for storage.
func EncodeMetadata(md map[string]interface{}) (string, error) {
	if md == nil {
		return "{}", nil
	}
	data, err := json.Marshal(md)
	if err != nil {
		return "", core.NewEngineError("EncodeMetadata", core.KindStorage, err)
	}
	return string(data), nil
}

// DecodeMetadata parses a metadata JSON column back into a map.
func DecodeMetadata(raw string) (map[string]interface{}, error) {
	if raw == "" {
		return map[string]interface{}{}, nil
	}
	var md map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &md); err != nil {
		return nil, core.NewEngineError("DecodeMetadata", core.KindStorage, err)
	}
	return md, nil
}

// EncodeTags serializes a tag set to a JSON array.
func EncodeTags(tags map[string]struct{}) (string, error) {
	list := make([]string, 0, len(tags))
	for t := range tags {
		list = append(list, t)
	}
	data, err := json.Marshal(list)
	if err != nil {
		return "", core.NewEngineError("EncodeTags", core.KindStorage, err)
	}
	return string(data), nil
}

// DecodeTags parses a JSON tag array back into a set.
func DecodeTags(raw string) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	if raw == "" {
		return out, nil
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, core.NewEngineError("DecodeTags", core.KindStorage, err)
	}
	for _, t := range list {
		out[t] = struct{}{}
	}
	return out, nil
}

// EncodeEmbedding serializes a []float32 embedding to JSON.
func EncodeEmbedding(v []float32) (string, error) {
	if v == nil {
		return "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", core.NewEngineError("EncodeEmbedding", core.KindStorage, err)
	}
	return string(data), nil
}

// DecodeEmbedding parses a JSON embedding column; an empty string decodes
// to nil, matching "embedding (optional)" in spec.md §3.
func DecodeEmbedding(raw string) ([]float32, error) {
	if raw == "" {
		return nil, nil
	}
	var v []float32
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, core.NewEngineError("DecodeEmbedding", core.KindStorage, err)
	}
	return v, nil
}

// TableNames is the shared logical table layout (spec.md §6 "Persistence
// layout"): one table per entity, identical across sqlite/postgres.
var TableNames = struct {
	Memories    string
	Events      string
	Relations   string
	ACLEntries  string
	Delegations string
	Checkpoints string
	Profiles    string
}{
	Memories:    "memories",
	Events:      "agent_events",
	Relations:   "relations",
	ACLEntries:  "acl_entries",
	Delegations: "delegations",
	Checkpoints: "checkpoints",
	Profiles:    "agent_profiles",
}
