// Package lifecycle implements cognitive decay, consolidation, TTL expiry,
// and anomaly scoring (spec.md §4.7). Grounded on the teacher's
// pkg/intelligence package, replaced with spec.md's exact formulas where
// the teacher's curve differs in shape.
package lifecycle

import (
	"context"
	"math"
	"time"

	"github.com/mnemohq/mnemo/pkg/core"
)

// DecayConfig tunes the decay pass.
type DecayConfig struct {
	ArchiveThreshold float64
	ForgetThreshold  float64
	BatchSize        int
}

// DefaultDecayConfig matches spec.md §4.7's illustrative thresholds.
func DefaultDecayConfig() DecayConfig {
	return DecayConfig{ArchiveThreshold: 0.2, ForgetThreshold: 0.05, BatchSize: 256}
}

// EffectiveImportance computes I_eff per spec.md §4.7:
//
//	I_eff = I_base · exp(-decay_rate · hours_since_creation) + 0.05 · ln(1 + access_count)
func EffectiveImportance(m *core.MemoryRecord, now time.Time) float64 {
	rate := m.MemoryType.DefaultDecayRate()
	if m.DecayRate != nil {
		rate = *m.DecayRate
	}
	hours := now.Sub(m.CreatedAt).Hours()
	if hours < 0 {
		hours = 0
	}
	base := m.Importance * math.Exp(-rate*hours)
	boost := 0.05 * math.Log(1+float64(m.AccessCount))
	eff := base + boost
	if eff < 0 {
		eff = 0
	}
	if eff > 1 {
		eff = 1
	}
	return eff
}

// Engine runs the periodic decay pass over a storage driver.
type Engine struct {
	driver core.Driver
	cfg    DecayConfig
}

// NewEngine builds a decay Engine.
func NewEngine(driver core.Driver, cfg DecayConfig) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 256
	}
	return &Engine{driver: driver, cfg: cfg}
}

// RunDecayPass walks memories for agentID in bounded batches, updating
// importance and transitioning consolidation_state per spec.md §4.7. It
// yields between batches so it never holds the agent's storage lock for
// the whole sweep (spec.md §5 backpressure).
func (e *Engine) RunDecayPass(ctx context.Context, agentID string, now time.Time) (evaluated, archived, forgotten int, err error) {
	offset := 0
	for {
		batch, listErr := e.driver.ListMemories(ctx, core.MemoryFilter{AgentID: agentID, ExcludeDeleted: true}, e.cfg.BatchSize, offset)
		if listErr != nil {
			return evaluated, archived, forgotten, core.NewEngineError("RunDecayPass", core.KindStorage, listErr)
		}
		if len(batch) == 0 {
			break
		}

		for _, m := range batch {
			select {
			case <-ctx.Done():
				return evaluated, archived, forgotten, core.NewEngineError("RunDecayPass", core.KindCancelled, ctx.Err())
			default:
			}

			if m.ConsolidationState == core.StateForgotten || m.ConsolidationState == core.StateArchived {
				continue
			}

			eff := EffectiveImportance(m, now)
			m.Importance = eff
			evaluated++

			switch {
			case eff < e.cfg.ForgetThreshold:
				m.ConsolidationState = core.StateForgotten
				forgotten++
			case eff < e.cfg.ArchiveThreshold:
				m.ConsolidationState = core.StateArchived
				archived++
			}

			if updateErr := e.driver.UpdateMemory(ctx, m); updateErr != nil {
				return evaluated, archived, forgotten, core.NewEngineError("RunDecayPass", core.KindStorage, updateErr)
			}
		}

		offset += len(batch)
		if len(batch) < e.cfg.BatchSize {
			break
		}
	}
	return evaluated, archived, forgotten, nil
}
