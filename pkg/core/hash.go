// Package core provides the Mnemo query coordinator and memory data model.
package core

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"sort"
)

// HashMemoryContent computes content_hash = H(content ‖ agent_id ‖
// creation_ts), exactly the commitment spec.md §3 documents. It is a pure
// function of the record's durable fields, not of its position in the
// chain, so two callers independently re-deriving a record's content_hash
// from (content, agent_id, created_at) always agree without needing the
// chain itself.
func HashMemoryContent(m *MemoryRecord) [32]byte {
	h := sha256.New()
	h.Write([]byte(m.Content))
	h.Write([]byte(m.AgentID))
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(m.CreatedAt.UnixNano()))
	h.Write(ts[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// HashChainLink computes prev_hash = H(content_hash ‖ prev_content_hash)
// (spec.md §3, §8 property 1: "content_hash_i ‖ content_hash_{i-1}", this
// record first). prev_hash is therefore never a raw copy of the
// predecessor's content_hash — an attacker who splices in a different
// predecessor must find one whose content hashes to the same link, not
// just relay a copied value.
func HashChainLink(contentHash, prevContentHash [32]byte) [32]byte {
	h := sha256.New()
	h.Write(contentHash[:])
	h.Write(prevContentHash[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// HashEventContent computes the content hash an AgentEvent's chain link
// commits to (spec.md §3, §4.9).
func HashEventContent(e *AgentEvent) [32]byte {
	h := sha256.New()
	h.Write([]byte(e.ID.String()))
	h.Write([]byte(e.AgentID))
	h.Write([]byte(e.EventType))
	h.Write([]byte(e.ParentEventID.String()))
	var clock [8]byte
	binary.BigEndian.PutUint64(clock[:], uint64(e.LogicalClock))
	h.Write(clock[:])
	h.Write(canonicalPayload(e.Payload))
	h.Write(e.PrevHash[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// canonicalPayload renders a payload map deterministically by sorting keys,
// so the same logical payload always hashes the same way regardless of Go's
// randomized map iteration order.
func canonicalPayload(payload map[string]interface{}) []byte {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte("="))
		h.Write([]byte(toCanonicalString(payload[k])))
		h.Write([]byte(";"))
	}
	return h.Sum(nil)
}

func toCanonicalString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// HashesEqual performs a constant-time comparison of two chain hashes, so
// tamper detection (spec.md §4.9 verify) never leaks timing information
// about where two chains first diverge.
func HashesEqual(a, b [32]byte) bool {
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}
