package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemohq/mnemo/pkg/core"
)

func TestTraceCausalityUpWalksParentChain(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	root, err := e.appendEvent(ctx, "agent-1", "", core.ID{}, core.EventMemoryWrite, nil)
	require.NoError(t, err)
	child, err := e.appendEvent(ctx, "agent-1", "", root.ID, core.EventRetrievalQuery, nil)
	require.NoError(t, err)
	grandchild, err := e.appendEvent(ctx, "agent-1", "", child.ID, core.EventRetrievalResult, nil)
	require.NoError(t, err)

	traced, err := e.TraceCausality(ctx, grandchild.ID, TraceUp, 0, nil)
	require.NoError(t, err)
	require.Len(t, traced, 2)
	assert.Equal(t, child.ID, traced[0].Event.ID)
	assert.Equal(t, 1, traced[0].Depth)
	assert.Equal(t, root.ID, traced[1].Event.ID)
	assert.Equal(t, 2, traced[1].Depth)
}

func TestTraceCausalityUpRespectsMaxDepth(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	root, err := e.appendEvent(ctx, "agent-1", "", core.ID{}, core.EventMemoryWrite, nil)
	require.NoError(t, err)
	child, err := e.appendEvent(ctx, "agent-1", "", root.ID, core.EventRetrievalQuery, nil)
	require.NoError(t, err)
	grandchild, err := e.appendEvent(ctx, "agent-1", "", child.ID, core.EventRetrievalResult, nil)
	require.NoError(t, err)

	traced, err := e.TraceCausality(ctx, grandchild.ID, TraceUp, 1, nil)
	require.NoError(t, err)
	require.Len(t, traced, 1)
	assert.Equal(t, child.ID, traced[0].Event.ID)
}

func TestTraceCausalityDownFindsChildren(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	root, err := e.appendEvent(ctx, "agent-1", "", core.ID{}, core.EventMemoryWrite, nil)
	require.NoError(t, err)
	childA, err := e.appendEvent(ctx, "agent-1", "", root.ID, core.EventRetrievalQuery, nil)
	require.NoError(t, err)
	childB, err := e.appendEvent(ctx, "agent-1", "", root.ID, core.EventMemoryShare, nil)
	require.NoError(t, err)

	traced, err := e.TraceCausality(ctx, root.ID, TraceDown, 0, nil)
	require.NoError(t, err)
	require.Len(t, traced, 2)
	ids := []core.ID{traced[0].Event.ID, traced[1].Event.ID}
	assert.Contains(t, ids, childA.ID)
	assert.Contains(t, ids, childB.ID)
}

func TestTraceCausalityFiltersByEventType(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	root, err := e.appendEvent(ctx, "agent-1", "", core.ID{}, core.EventMemoryWrite, nil)
	require.NoError(t, err)
	_, err = e.appendEvent(ctx, "agent-1", "", root.ID, core.EventRetrievalQuery, nil)
	require.NoError(t, err)
	share, err := e.appendEvent(ctx, "agent-1", "", root.ID, core.EventMemoryShare, nil)
	require.NoError(t, err)

	filter := core.EventMemoryShare
	traced, err := e.TraceCausality(ctx, root.ID, TraceDown, 0, &filter)
	require.NoError(t, err)
	require.Len(t, traced, 1)
	assert.Equal(t, share.ID, traced[0].Event.ID)
}

func TestTraceCausalityBothDirections(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	root, err := e.appendEvent(ctx, "agent-1", "", core.ID{}, core.EventMemoryWrite, nil)
	require.NoError(t, err)
	mid, err := e.appendEvent(ctx, "agent-1", "", root.ID, core.EventRetrievalQuery, nil)
	require.NoError(t, err)
	_, err = e.appendEvent(ctx, "agent-1", "", mid.ID, core.EventRetrievalResult, nil)
	require.NoError(t, err)

	traced, err := e.TraceCausality(ctx, mid.ID, TraceBoth, 0, nil)
	require.NoError(t, err)
	assert.Len(t, traced, 2, "mid has one parent (root) and one child (the retrieval_result event)")
}
