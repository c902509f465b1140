package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemohq/mnemo/pkg/core"
)

func TestCheckpointCapturesLiveMemorySet(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	res, err := e.Remember(ctx, "agent-1", "checkpointed note", core.WithThreadID("thread-1"))
	require.NoError(t, err)

	cp, err := e.Checkpoint(ctx, "agent-1", "thread-1", map[string]interface{}{"step": 1})
	require.NoError(t, err)
	assert.Equal(t, core.DefaultBranch, cp.BranchName)
	assert.Contains(t, cp.MemoryRefs, res.ID)
	assert.True(t, cp.ParentID.IsZero(), "the first checkpoint on a branch has no parent")
}

func TestCheckpointChainsOntoPriorHead(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	_, err := e.Remember(ctx, "agent-1", "first", core.WithThreadID("thread-1"))
	require.NoError(t, err)
	first, err := e.Checkpoint(ctx, "agent-1", "thread-1", nil)
	require.NoError(t, err)

	second, err := e.Checkpoint(ctx, "agent-1", "thread-1", nil)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ParentID)
}

func TestBranchCopiesSourceSnapshot(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	_, err := e.Remember(ctx, "agent-1", "main branch note", core.WithThreadID("thread-1"))
	require.NoError(t, err)
	main, err := e.Checkpoint(ctx, "agent-1", "thread-1", nil)
	require.NoError(t, err)

	branch, err := e.Branch(ctx, "agent-1", "thread-1", core.DefaultBranch, "experiment", core.ID{})
	require.NoError(t, err)
	assert.Equal(t, main.ID, branch.ParentID)
	assert.Equal(t, "experiment", branch.BranchName)
	assert.Equal(t, main.MemoryRefs, branch.MemoryRefs)
}

func TestMergeFullIncludesMemoriesIntroducedOnSource(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	_, err := e.Remember(ctx, "agent-1", "pre-branch note", core.WithThreadID("thread-1"))
	require.NoError(t, err)
	require.NoError(t, waitAndCheckpoint(e, ctx, "thread-1"))

	_, err = e.Branch(ctx, "agent-1", "thread-1", core.DefaultBranch, "feature", core.ID{})
	require.NoError(t, err)

	time.Sleep(2 * time.Millisecond)
	onFeature, err := e.Remember(ctx, "agent-1", "feature-branch note", core.WithThreadID("thread-1"))
	require.NoError(t, err)
	_, err = e.Checkpoint(ctx, "agent-1", "thread-1", nil, core.WithBranchName("feature"))
	require.NoError(t, err)

	merged, err := e.Merge(ctx, "agent-1", "thread-1", "feature", core.DefaultBranch, MergeFull, nil, "")
	require.NoError(t, err)
	assert.Contains(t, merged.MemoryRefs, onFeature.ID)
}

func TestMergeCherryPickOnlyIncludesPicked(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	require.NoError(t, waitAndCheckpoint(e, ctx, "thread-1"))
	_, err := e.Branch(ctx, "agent-1", "thread-1", core.DefaultBranch, "feature", core.ID{})
	require.NoError(t, err)

	time.Sleep(2 * time.Millisecond)
	picked, err := e.Remember(ctx, "agent-1", "picked note", core.WithThreadID("thread-1"))
	require.NoError(t, err)
	skipped, err := e.Remember(ctx, "agent-1", "skipped note", core.WithThreadID("thread-1"))
	require.NoError(t, err)
	_, err = e.Checkpoint(ctx, "agent-1", "thread-1", nil, core.WithBranchName("feature"))
	require.NoError(t, err)

	merged, err := e.Merge(ctx, "agent-1", "thread-1", "feature", core.DefaultBranch, MergeCherryPick, []core.ID{picked.ID}, "")
	require.NoError(t, err)
	assert.Contains(t, merged.MemoryRefs, picked.ID)
	assert.NotContains(t, merged.MemoryRefs, skipped.ID)
}

func TestMergeSquashCreatesSyntheticMemory(t *testing.T) {
	e, driver := newTestEngine()
	ctx := context.Background()

	require.NoError(t, waitAndCheckpoint(e, ctx, "thread-1"))
	_, err := e.Branch(ctx, "agent-1", "thread-1", core.DefaultBranch, "feature", core.ID{})
	require.NoError(t, err)

	time.Sleep(2 * time.Millisecond)
	_, err = e.Remember(ctx, "agent-1", "detail note", core.WithThreadID("thread-1"))
	require.NoError(t, err)
	_, err = e.Checkpoint(ctx, "agent-1", "thread-1", nil, core.WithBranchName("feature"))
	require.NoError(t, err)

	merged, err := e.Merge(ctx, "agent-1", "thread-1", "feature", core.DefaultBranch, MergeSquash, nil, "squashed summary")
	require.NoError(t, err)
	// The target's pre-existing refs (the seed memory) are kept; the
	// squashed synthetic memory is added alongside them, not in place of
	// everything the target already had.
	require.Len(t, merged.MemoryRefs, 2)

	var squashedID core.ID
	for id := range merged.MemoryRefs {
		m, err := driver.GetMemory(ctx, id)
		require.NoError(t, err)
		if m.Content == "squashed summary" {
			squashedID = id
		}
	}
	require.False(t, squashedID.IsZero(), "expected one memory ref to be the squashed synthetic memory")
}

func TestMergeUnknownStrategyErrors(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	require.NoError(t, waitAndCheckpoint(e, ctx, "thread-1"))
	_, err := e.Branch(ctx, "agent-1", "thread-1", core.DefaultBranch, "feature", core.ID{})
	require.NoError(t, err)

	_, err = e.Merge(ctx, "agent-1", "thread-1", "feature", core.DefaultBranch, MergeStrategy("bogus"), nil, "")
	assert.Error(t, err)
}

func TestReplayDetectsContentTamper(t *testing.T) {
	e, driver := newTestEngine()
	ctx := context.Background()

	res, err := e.Remember(ctx, "agent-1", "original content", core.WithThreadID("thread-1"))
	require.NoError(t, err)
	cp, err := e.Checkpoint(ctx, "agent-1", "thread-1", nil)
	require.NoError(t, err)
	assert.Contains(t, cp.MemoryRefs, res.ID)

	m, err := driver.GetMemory(ctx, res.ID)
	require.NoError(t, err)
	m.Content = "tampered content"
	require.NoError(t, driver.UpdateMemory(ctx, m))

	result, err := e.Replay(ctx, "thread-1", core.DefaultBranch)
	require.NoError(t, err)
	assert.Contains(t, result.HashMismatches, res.ID)
}

func TestReplayCleanHistoryHasNoMismatches(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	_, err := e.Remember(ctx, "agent-1", "untouched content", core.WithThreadID("thread-1"))
	require.NoError(t, err)
	_, err = e.Checkpoint(ctx, "agent-1", "thread-1", nil)
	require.NoError(t, err)

	result, err := e.Replay(ctx, "thread-1", core.DefaultBranch)
	require.NoError(t, err)
	assert.Empty(t, result.HashMismatches)
}

// waitAndCheckpoint writes a seed memory on thread-1/main, then checkpoints,
// giving merge tests a divergence point strictly before the feature branch's
// own memories (ListMemories has no sub-millisecond guarantee otherwise).
func waitAndCheckpoint(e *Engine, ctx context.Context, threadID string) error {
	if _, err := e.Remember(ctx, "agent-1", "seed note", core.WithThreadID(threadID)); err != nil {
		return err
	}
	_, err := e.Checkpoint(ctx, "agent-1", threadID, nil)
	return err
}
