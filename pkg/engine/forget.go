package engine

import (
	"context"
	"time"

	"github.com/mnemohq/mnemo/pkg/core"
	"github.com/mnemohq/mnemo/pkg/lifecycle"
)

// ForgetCriteria selects targets by attribute instead of explicit ids
// (spec.md §4.3).
type ForgetCriteria struct {
	MaxAgeHours        float64
	MinImportanceBelow float64
	MemoryType         core.MemoryType
	Tags               []string
}

// ForgetResult reports the outcome of a Forget call.
type ForgetResult struct {
	Forgotten []core.ID
	Errors    map[core.ID]error
}

// Forget disposes of memories per spec.md §4.3: targets are either the
// given ids or selected by criteria, each target requires Delete
// permission (Admin for hard_delete), and disposal follows the strategy's
// semantics.
func (e *Engine) Forget(ctx context.Context, principalID string, memoryIDs []core.ID, criteria *ForgetCriteria, opts ...core.ForgetOption) (*ForgetResult, error) {
	const op = "Forget"
	o := core.ApplyForgetOptions(opts)
	now := time.Now()

	result := &ForgetResult{Errors: make(map[core.ID]error)}
	required := core.PermissionDelete
	if o.Strategy == core.ForgetHard {
		required = core.PermissionAdmin
	}

	var targets []*core.MemoryRecord
	if len(memoryIDs) > 0 {
		// Explicit ids: a lookup failure (including an already hard-deleted
		// id) is itself reported per-id rather than silently dropped
		// (spec.md §8 property 9).
		for _, id := range memoryIDs {
			m, err := e.driver.GetMemory(ctx, id)
			if err != nil {
				result.Errors[id] = err
				continue
			}
			targets = append(targets, m)
		}
	} else {
		var err error
		targets, err = e.resolveForgetTargets(ctx, criteria)
		if err != nil {
			return nil, err
		}
	}

	for _, m := range targets {
		if err := e.authz.RequireAllow(ctx, principalID, m, required); err != nil {
			result.Errors[m.ID] = err
			continue
		}
		if err := e.forgetOne(ctx, m, o.Strategy, now); err != nil {
			result.Errors[m.ID] = err
			continue
		}
		result.Forgotten = append(result.Forgotten, m.ID)

		// content_hash lets Verify distinguish a hard_delete gap in the
		// memory chain from tampering (spec.md §4.9): the next surviving
		// memory's prev_hash will equal HashChainLink(its own content_hash,
		// this value), not a forged one.
		payload := map[string]interface{}{
			"memory_id":   m.ID.String(),
			"strategy":    string(o.Strategy),
			"reason":      o.Reason,
			"content_hash": m.ContentHash,
		}
		if _, evErr := e.appendEvent(ctx, m.AgentID, m.ThreadID, core.ID{}, core.EventMemoryDelete, payload); evErr != nil {
			result.Errors[m.ID] = core.NewEngineError(op, core.KindStorage, evErr)
		}
	}

	return result, nil
}

func (e *Engine) resolveForgetTargets(ctx context.Context, criteria *ForgetCriteria) ([]*core.MemoryRecord, error) {
	f := core.MemoryFilter{ExcludeDeleted: true}
	if criteria != nil {
		if criteria.MemoryType != "" {
			f.MemoryTypes = []core.MemoryType{criteria.MemoryType}
		}
		f.Tags = criteria.Tags
	}
	all, err := e.driver.ListMemories(ctx, f, 0, 0)
	if err != nil {
		return nil, core.NewEngineError("Forget", core.KindStorage, err)
	}

	if criteria == nil {
		return all, nil
	}

	now := time.Now()
	out := make([]*core.MemoryRecord, 0, len(all))
	for _, m := range all {
		if criteria.MaxAgeHours > 0 && now.Sub(m.CreatedAt).Hours() < criteria.MaxAgeHours {
			continue
		}
		if criteria.MinImportanceBelow > 0 && m.Importance >= criteria.MinImportanceBelow {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// forgetOne applies strategy to a single target memory (spec.md §4.3's
// per-strategy semantics).
func (e *Engine) forgetOne(ctx context.Context, m *core.MemoryRecord, strategy core.ForgetStrategy, now time.Time) error {
	const op = "Forget"

	switch strategy {
	case core.ForgetSoft:
		if err := e.driver.DeleteMemory(ctx, m.ID, false); err != nil {
			return core.NewEngineError(op, core.KindStorage, err)
		}
		_ = e.vectors.Remove(m.ID)
		_ = e.lexical.Remove(m.ID)
		return nil

	case core.ForgetHard:
		// DeleteMemory already classifies "no such row" as KindNotFound
		// (spec.md §8 property 9: a second hard_delete of the same id
		// reports already-absent rather than succeeding silently); the
		// driver's classification is returned as-is.
		if err := e.driver.DeleteMemory(ctx, m.ID, true); err != nil {
			return err
		}
		_ = e.vectors.Remove(m.ID)
		_ = e.lexical.Remove(m.ID)
		return nil

	case core.ForgetDecay:
		m.Importance = lifecycle.EffectiveImportance(m, now)
		if err := e.driver.UpdateMemory(ctx, m); err != nil {
			return core.NewEngineError(op, core.KindStorage, err)
		}
		return nil

	case core.ForgetConsolidate:
		m.ConsolidationState = core.StatePending
		if err := e.driver.UpdateMemory(ctx, m); err != nil {
			return core.NewEngineError(op, core.KindStorage, err)
		}
		return nil

	case core.ForgetArchive:
		m.ConsolidationState = core.StateArchived
		if e.archive != nil {
			if err := e.archive.Archive(ctx, m, "forget(strategy=archive)", now); err != nil {
				return core.NewEngineError(op, core.KindStorage, err)
			}
			if err := e.driver.DeleteMemory(ctx, m.ID, true); err != nil {
				return core.NewEngineError(op, core.KindStorage, err)
			}
			_ = e.vectors.Remove(m.ID)
			_ = e.lexical.Remove(m.ID)
			return nil
		}
		if err := e.driver.UpdateMemory(ctx, m); err != nil {
			return core.NewEngineError(op, core.KindStorage, err)
		}
		return nil

	default:
		return core.NewEngineError(op, core.KindValidation, unknownForgetStrategy(strategy))
	}
}

func unknownForgetStrategy(s core.ForgetStrategy) error {
	return &forgetStrategyError{s}
}

type forgetStrategyError struct{ s core.ForgetStrategy }

func (e *forgetStrategyError) Error() string { return "unknown forget strategy: " + string(e.s) }
