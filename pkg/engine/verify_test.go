package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemohq/mnemo/pkg/core"
)

func TestVerifyCleanChainIsValid(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	_, err := e.Remember(ctx, "agent-1", "first")
	require.NoError(t, err)
	_, err = e.Remember(ctx, "agent-1", "second")
	require.NoError(t, err)
	_, err = e.Remember(ctx, "agent-1", "third")
	require.NoError(t, err)

	report, err := e.Verify(ctx, "agent-1", "")
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Empty(t, report.DeletionGaps)
}

func TestVerifyDetectsContentTamper(t *testing.T) {
	e, driver := newTestEngine()
	ctx := context.Background()

	res, err := e.Remember(ctx, "agent-1", "untampered")
	require.NoError(t, err)
	_, err = e.Remember(ctx, "agent-1", "second")
	require.NoError(t, err)

	m, err := driver.GetMemory(ctx, res.ID)
	require.NoError(t, err)
	m.Content = "an attacker rewrote this"
	require.NoError(t, driver.UpdateMemory(ctx, m))

	report, err := e.Verify(ctx, "agent-1", "")
	require.NoError(t, err)
	assert.False(t, report.Valid)
	assert.Equal(t, res.ID, report.FirstBrokenAt)
}

func TestVerifyExplainsHardDeleteGap(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	_, err := e.Remember(ctx, "agent-1", "first")
	require.NoError(t, err)
	second, err := e.Remember(ctx, "agent-1", "second, soon to be hard-deleted")
	require.NoError(t, err)
	third, err := e.Remember(ctx, "agent-1", "third")
	require.NoError(t, err)

	_, err = e.Forget(ctx, "agent-1", []core.ID{second.ID}, nil, core.WithForgetStrategy(core.ForgetHard))
	require.NoError(t, err)

	report, err := e.Verify(ctx, "agent-1", "")
	require.NoError(t, err)
	assert.True(t, report.Valid, "a hard-delete gap with a matching memory_delete event must not be reported as tampering")
	assert.Contains(t, report.DeletionGaps, third.ID)
}
