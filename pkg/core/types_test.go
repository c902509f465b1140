package core_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mnemohq/mnemo/pkg/core"
)

func TestPermissionSatisfies(t *testing.T) {
	assert.True(t, core.PermissionAdmin.Satisfies(core.PermissionRead))
	assert.True(t, core.PermissionWrite.Satisfies(core.PermissionWrite))
	assert.False(t, core.PermissionRead.Satisfies(core.PermissionWrite))
	assert.False(t, core.PermissionShare.Satisfies(core.PermissionDelegate))
}

func TestPermissionOrdering(t *testing.T) {
	ordered := []core.Permission{
		core.PermissionNone,
		core.PermissionRead,
		core.PermissionWrite,
		core.PermissionDelete,
		core.PermissionShare,
		core.PermissionDelegate,
		core.PermissionAdmin,
	}
	for i := 1; i < len(ordered); i++ {
		assert.Less(t, ordered[i-1], ordered[i])
	}
}

func TestMemoryRecordExcludedForgotten(t *testing.T) {
	m := &core.MemoryRecord{ConsolidationState: core.StateForgotten}
	assert.True(t, m.Excluded(time.Now()))
}

func TestMemoryRecordExcludedQuarantined(t *testing.T) {
	m := &core.MemoryRecord{ConsolidationState: core.StateActive, Quarantined: true}
	assert.True(t, m.Excluded(time.Now()))
}

func TestMemoryRecordExcludedDeleted(t *testing.T) {
	now := time.Now()
	m := &core.MemoryRecord{ConsolidationState: core.StateActive, DeletedAt: &now}
	assert.True(t, m.Excluded(time.Now()))
}

func TestMemoryRecordExcludedExpired(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	m := &core.MemoryRecord{ConsolidationState: core.StateActive, ExpiresAt: &past}
	assert.True(t, m.Excluded(time.Now()))
}

func TestMemoryRecordNotExcludedWhenActive(t *testing.T) {
	future := time.Now().Add(time.Hour)
	m := &core.MemoryRecord{ConsolidationState: core.StateActive, ExpiresAt: &future}
	assert.False(t, m.Excluded(time.Now()))
}

func TestMemoryRecordTagHelpers(t *testing.T) {
	m := &core.MemoryRecord{Tags: map[string]struct{}{"alpha": {}, "beta": {}}}
	assert.True(t, m.HasTag("alpha"))
	assert.False(t, m.HasTag("gamma"))
	assert.ElementsMatch(t, []string{"alpha", "beta"}, m.TagSlice())
}

func TestACLEntryExpired(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	expired := &core.ACLEntry{ExpiresAt: &past}
	assert.True(t, expired.Expired(time.Now()))

	notExpired := &core.ACLEntry{}
	assert.False(t, notExpired.Expired(time.Now()))
}

func TestDelegationScopeContains(t *testing.T) {
	m := &core.MemoryRecord{ID: core.NewID(), Tags: map[string]struct{}{"work": {}}}

	all := core.DelegationScope{Kind: core.DelegationScopeAll}
	assert.True(t, all.Contains(m))

	byTag := core.DelegationScope{Kind: core.DelegationScopeByTag, Tags: map[string]struct{}{"personal": {}}}
	assert.False(t, byTag.Contains(m))

	byTagMatch := core.DelegationScope{Kind: core.DelegationScopeByTag, Tags: map[string]struct{}{"work": {}}}
	assert.True(t, byTagMatch.Contains(m))

	byMemory := core.DelegationScope{Kind: core.DelegationScopeByMemory, MemoryIDs: map[core.ID]struct{}{m.ID: {}}}
	assert.True(t, byMemory.Contains(m))

	other := &core.MemoryRecord{ID: core.NewID()}
	assert.False(t, byMemory.Contains(other))
}

func TestDelegationActive(t *testing.T) {
	now := time.Now()

	active := &core.Delegation{MaxDepth: 2, CurrentDepth: 1}
	assert.True(t, active.Active(now))

	revoked := &core.Delegation{RevokedAt: &now}
	assert.False(t, revoked.Active(now))

	past := now.Add(-time.Minute)
	expired := &core.Delegation{ExpiresAt: &past}
	assert.False(t, expired.Active(now))

	overDepth := &core.Delegation{MaxDepth: 1, CurrentDepth: 2}
	assert.False(t, overDepth.Active(now))
}

func TestMemoryTypeDefaultDecayRate(t *testing.T) {
	assert.Equal(t, 0.05, core.MemoryWorking.DefaultDecayRate())
	assert.Equal(t, 0.01, core.MemoryEpisodic.DefaultDecayRate())
	assert.Equal(t, 0.001, core.MemorySemantic.DefaultDecayRate())
	assert.Equal(t, 0.002, core.MemoryProcedural.DefaultDecayRate())
}

func TestIDRoundTrip(t *testing.T) {
	id := core.NewID()
	parsed, err := core.ParseID(id.String())
	assert.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestIDIsZero(t *testing.T) {
	var zero core.ID
	assert.True(t, zero.IsZero())
	assert.False(t, core.NewID().IsZero())
}
