package core_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mnemohq/mnemo/pkg/core"
)

func newMemory(id core.ID, content string, createdAt time.Time) *core.MemoryRecord {
	return &core.MemoryRecord{
		ID:         id,
		AgentID:    "agent-1",
		Content:    content,
		MemoryType: core.MemoryEpisodic,
		CreatedAt:  createdAt,
	}
}

func TestHashMemoryContentDeterministic(t *testing.T) {
	id := core.NewID()
	now := time.Now()
	m := newMemory(id, "the sky is blue", now)

	h1 := core.HashMemoryContent(m)
	h2 := core.HashMemoryContent(m)

	assert.Equal(t, h1, h2)
}

func TestHashMemoryContentChangesWithContent(t *testing.T) {
	id := core.NewID()
	now := time.Now()
	a := newMemory(id, "the sky is blue", now)
	b := newMemory(id, "the sky is grey", now)

	assert.NotEqual(t, core.HashMemoryContent(a), core.HashMemoryContent(b))
}

func TestHashMemoryContentChangesWithCreationTime(t *testing.T) {
	id := core.NewID()
	a := newMemory(id, "same content", time.Unix(1000, 0))
	b := newMemory(id, "same content", time.Unix(2000, 0))

	assert.NotEqual(t, core.HashMemoryContent(a), core.HashMemoryContent(b),
		"content_hash must fold in creation_ts per spec.md §3")
}

func TestHashMemoryContentIgnoresIDAndPrevHash(t *testing.T) {
	now := time.Now()
	a := newMemory(core.NewID(), "same content", now)
	b := newMemory(core.NewID(), "same content", now)
	b.PrevHash = [32]byte{9, 9, 9}

	assert.Equal(t, core.HashMemoryContent(a), core.HashMemoryContent(b),
		"content_hash = H(content, agent_id, creation_ts) only; id and prev_hash are not inputs")
}

func TestHashChainLinkDiffersFromRawCopy(t *testing.T) {
	contentHash := [32]byte{1, 2, 3}
	prevContentHash := [32]byte{4, 5, 6}

	link := core.HashChainLink(contentHash, prevContentHash)

	assert.NotEqual(t, prevContentHash, link, "prev_hash must be a real hash over both linked hashes, not a copy")
	assert.Equal(t, link, core.HashChainLink(contentHash, prevContentHash), "deterministic for the same pair")
	assert.NotEqual(t, link, core.HashChainLink(prevContentHash, contentHash), "operand order matters")
}

func TestHashEventContentDeterministic(t *testing.T) {
	ev := &core.AgentEvent{
		ID:           core.NewID(),
		AgentID:      "agent-1",
		EventType:    core.EventMemoryWrite,
		LogicalClock: 3,
		Payload:      map[string]interface{}{"b": "2", "a": "1"},
	}

	assert.Equal(t, core.HashEventContent(ev), core.HashEventContent(ev))
}

func TestHashEventContentPayloadKeyOrderIndependent(t *testing.T) {
	base := core.AgentEvent{
		ID:           core.NewID(),
		AgentID:      "agent-1",
		EventType:    core.EventMemoryWrite,
		LogicalClock: 3,
	}

	withAB := base
	withAB.Payload = map[string]interface{}{"a": "1", "b": "2"}

	withBA := base
	withBA.Payload = map[string]interface{}{"b": "2", "a": "1"}

	assert.Equal(t, core.HashEventContent(&withAB), core.HashEventContent(&withBA),
		"canonicalPayload must sort keys so map iteration order never affects the hash")
}

func TestHashesEqual(t *testing.T) {
	a := [32]byte{1, 2, 3}
	b := [32]byte{1, 2, 3}
	c := [32]byte{1, 2, 4}

	assert.True(t, core.HashesEqual(a, b))
	assert.False(t, core.HashesEqual(a, c))
}
