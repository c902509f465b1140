package lifecycle_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemohq/mnemo/pkg/core"
	"github.com/mnemohq/mnemo/pkg/lifecycle"
)

type cleanupDriver struct {
	core.Driver
	deleted int
	err     error
}

func (d *cleanupDriver) CleanupExpired(ctx context.Context, now time.Time) (int, error) {
	return d.deleted, d.err
}

func TestCleanupExpiredReturnsCount(t *testing.T) {
	driver := &cleanupDriver{deleted: 3}
	n, err := lifecycle.CleanupExpired(context.Background(), driver, time.Now())

	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestCleanupExpiredWrapsDriverError(t *testing.T) {
	driver := &cleanupDriver{err: assert.AnError}
	_, err := lifecycle.CleanupExpired(context.Background(), driver, time.Now())

	assert.Error(t, err)
	var engineErr *core.EngineError
	assert.ErrorAs(t, err, &engineErr)
	assert.Equal(t, core.KindStorage, engineErr.Kind)
}
