package lifecycle

import (
	"context"
	"time"

	"github.com/mnemohq/mnemo/pkg/core"
)

// CleanupExpired hard-deletes memories whose expires_at has passed
// (spec.md §4.7 TTL expiry) by delegating to the driver's CleanupExpired.
// Expired memories are also filtered at read time, independent of this
// sweep having run, by core.MemoryRecord.Excluded (spec.md: "TTL must
// additionally be honored as a read-time filter — even before cleanup
// runs").
func CleanupExpired(ctx context.Context, driver core.Driver, now time.Time) (int, error) {
	n, err := driver.CleanupExpired(ctx, now)
	if err != nil {
		return 0, core.NewEngineError("CleanupExpired", core.KindStorage, err)
	}
	return n, nil
}
