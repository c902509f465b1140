package engine

import (
	"github.com/mnemohq/mnemo/pkg/auth"
	"github.com/mnemohq/mnemo/pkg/core"
	"github.com/mnemohq/mnemo/pkg/embedding/noop"
	"github.com/mnemohq/mnemo/pkg/fulltext"
	"github.com/mnemohq/mnemo/pkg/lifecycle"
	"github.com/mnemohq/mnemo/pkg/vectorindex"
)

// newTestEngine wires an Engine from real, deterministic, in-process
// implementations so operation files can be exercised end to end without a
// real database or network embedding provider.
func newTestEngine() (*Engine, *memoryDriver) {
	driver := newMemoryDriver()
	e := &Engine{
		driver:       driver,
		authz:        auth.New(driver, 3),
		vectors:      vectorindex.New(),
		lexical:      fulltext.New(),
		embedder:     noop.New(32),
		decay:        lifecycle.NewEngine(driver, lifecycle.DefaultDecayConfig()),
		consolidator: lifecycle.NewConsolidator(driver, nil, lifecycle.DefaultConsolidationConfig()),
		agents:       make(map[string]struct{}),
		cfg:          &core.Config{},
	}
	return e, driver
}
