package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemohq/mnemo/pkg/core"
)

func TestResolveConflictNewestWins(t *testing.T) {
	e, driver := newTestEngine()
	ctx := context.Background()

	older, err := e.Remember(ctx, "agent-1", "the meeting is at 2pm")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	newer, err := e.Remember(ctx, "agent-1", "the meeting is at 3pm")
	require.NoError(t, err)

	result, err := e.ResolveConflict(ctx, "agent-1", older.ID, newer.ID, PolicyNewestWins, core.ID{})
	require.NoError(t, err)
	assert.Equal(t, newer.ID, result.WinnerID)
	assert.Equal(t, []core.ID{older.ID}, result.LoserIDs)

	loser, err := driver.GetMemory(ctx, older.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, loser.Importance, 1e-9, "default importance 0.5 demoted by factor 0.5")
}

func TestResolveConflictHighestImportance(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	weak, err := e.Remember(ctx, "agent-1", "claim A", core.WithImportance(0.2))
	require.NoError(t, err)
	strong, err := e.Remember(ctx, "agent-1", "claim B", core.WithImportance(0.9))
	require.NoError(t, err)

	result, err := e.ResolveConflict(ctx, "agent-1", weak.ID, strong.ID, PolicyHighestImportance, core.ID{})
	require.NoError(t, err)
	assert.Equal(t, strong.ID, result.WinnerID)
}

func TestResolveConflictEvidenceWeighted(t *testing.T) {
	e, driver := newTestEngine()
	ctx := context.Background()

	claimA, err := e.Remember(ctx, "agent-1", "the server is down", core.WithImportance(0.5))
	require.NoError(t, err)
	claimB, err := e.Remember(ctx, "agent-1", "the server is up", core.WithImportance(0.5))
	require.NoError(t, err)
	evidence, err := e.Remember(ctx, "agent-1", "status page shows an outage", core.WithImportance(0.9))
	require.NoError(t, err)

	require.NoError(t, driver.InsertRelation(ctx, &core.Relation{
		ID: core.NewID(), SourceID: claimA.ID, TargetID: evidence.ID,
		RelationType: "supports", Weight: 1.0, CreatedAt: time.Now(),
	}))

	result, err := e.ResolveConflict(ctx, "agent-1", claimA.ID, claimB.ID, PolicyEvidenceWeighted, core.ID{})
	require.NoError(t, err)
	assert.Equal(t, claimA.ID, result.WinnerID, "claimA has supporting evidence, claimB has none")
}

func TestResolveConflictManualRequiresWinnerInPair(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	a, err := e.Remember(ctx, "agent-1", "claim A")
	require.NoError(t, err)
	b, err := e.Remember(ctx, "agent-1", "claim B")
	require.NoError(t, err)
	other, err := e.Remember(ctx, "agent-1", "unrelated")
	require.NoError(t, err)

	_, err = e.ResolveConflict(ctx, "agent-1", a.ID, b.ID, PolicyManual, other.ID)
	assert.Error(t, err)

	result, err := e.ResolveConflict(ctx, "agent-1", a.ID, b.ID, PolicyManual, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, result.WinnerID)
}

func TestResolveConflictRecordsResolvedByRelation(t *testing.T) {
	e, driver := newTestEngine()
	ctx := context.Background()

	a, err := e.Remember(ctx, "agent-1", "claim A")
	require.NoError(t, err)
	b, err := e.Remember(ctx, "agent-1", "claim B", core.WithImportance(0.9))
	require.NoError(t, err)

	_, err = e.ResolveConflict(ctx, "agent-1", a.ID, b.ID, PolicyHighestImportance, core.ID{})
	require.NoError(t, err)

	rels, err := driver.ListRelations(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, "resolved_by", rels[0].RelationType)
	assert.Equal(t, b.ID, rels[0].TargetID)

	m, err := driver.GetMemory(ctx, a.ID)
	require.NoError(t, err)
	assert.NotNil(t, m, "ResolveConflict must never delete the loser")
}

func TestResolveConflictRequiresWritePermission(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	a, err := e.Remember(ctx, "agent-1", "claim A")
	require.NoError(t, err)
	b, err := e.Remember(ctx, "agent-1", "claim B")
	require.NoError(t, err)

	_, err = e.ResolveConflict(ctx, "agent-2", a.ID, b.ID, PolicyHighestImportance, core.ID{})
	assert.Error(t, err)
}
