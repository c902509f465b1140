package engine

import (
	"context"
	"time"

	"github.com/mnemohq/mnemo/pkg/core"
)

// ConflictPolicy selects how ResolveConflict picks a winner between two
// contradictory memories (spec.md §4.11).
type ConflictPolicy string

const (
	PolicyNewestWins        ConflictPolicy = "newest_wins"
	PolicyHighestImportance ConflictPolicy = "highest_importance"
	PolicyEvidenceWeighted  ConflictPolicy = "evidence_weighted"
	PolicyManual            ConflictPolicy = "manual"
)

// ConflictResult reports the outcome of ResolveConflict.
type ConflictResult struct {
	WinnerID    core.ID
	LoserIDs    []core.ID
	RelationIDs []core.ID
}

// ResolveConflict picks a winner between two memories in the same thread
// and scope that carry contradictory facts (detected upstream either by an
// injected predicate or by a "contradicts" relation between them). It never
// deletes the loser: it demotes the loser's importance and records a
// "resolved_by" relation from loser to winner (spec.md §4.11).
//
// For PolicyManual, winnerID must be supplied by the caller (manualWinner);
// the other three policies compute the winner from a and b themselves.
func (e *Engine) ResolveConflict(ctx context.Context, principalID string, a, b core.ID, policy ConflictPolicy, manualWinner core.ID) (*ConflictResult, error) {
	const op = "ResolveConflict"

	ma, err := e.driver.GetMemory(ctx, a)
	if err != nil {
		return nil, core.NewEngineError(op, core.KindNotFound, err)
	}
	mb, err := e.driver.GetMemory(ctx, b)
	if err != nil {
		return nil, core.NewEngineError(op, core.KindNotFound, err)
	}
	if err := e.authz.RequireAllow(ctx, principalID, ma, core.PermissionWrite); err != nil {
		return nil, err
	}
	if err := e.authz.RequireAllow(ctx, principalID, mb, core.PermissionWrite); err != nil {
		return nil, err
	}

	var winner, loser *core.MemoryRecord
	switch policy {
	case PolicyNewestWins:
		if ma.CreatedAt.After(mb.CreatedAt) {
			winner, loser = ma, mb
		} else {
			winner, loser = mb, ma
		}

	case PolicyHighestImportance:
		if ma.Importance >= mb.Importance {
			winner, loser = ma, mb
		} else {
			winner, loser = mb, ma
		}

	case PolicyEvidenceWeighted:
		weightA, err := e.supportWeight(ctx, ma)
		if err != nil {
			return nil, core.NewEngineError(op, core.KindStorage, err)
		}
		weightB, err := e.supportWeight(ctx, mb)
		if err != nil {
			return nil, core.NewEngineError(op, core.KindStorage, err)
		}
		if weightA >= weightB {
			winner, loser = ma, mb
		} else {
			winner, loser = mb, ma
		}

	case PolicyManual:
		switch manualWinner {
		case a:
			winner, loser = ma, mb
		case b:
			winner, loser = mb, ma
		default:
			return nil, core.NewEngineError(op, core.KindValidation, errManualWinnerNotInPair)
		}

	default:
		return nil, core.NewEngineError(op, core.KindValidation, errUnknownConflictPolicy)
	}

	loser.Importance *= demotionFactor
	if err := e.driver.UpdateMemory(ctx, loser); err != nil {
		return nil, core.NewEngineError(op, core.KindStorage, err)
	}

	rel := &core.Relation{
		ID:           core.NewID(),
		SourceID:     loser.ID,
		TargetID:     winner.ID,
		RelationType: "resolved_by",
		Weight:       1.0,
		CreatedAt:    time.Now(),
	}
	if err := e.driver.InsertRelation(ctx, rel); err != nil {
		return nil, core.NewEngineError(op, core.KindStorage, err)
	}

	return &ConflictResult{
		WinnerID:    winner.ID,
		LoserIDs:    []core.ID{loser.ID},
		RelationIDs: []core.ID{rel.ID},
	}, nil
}

// demotionFactor scales a conflict loser's importance down without zeroing
// it — the memory stays recallable, just ranked lower (spec.md §4.11
// "demote losers' importance").
const demotionFactor = 0.5

// supportWeight sums the importance of memories m cites as evidence via
// outgoing "supports" relations, for the evidence_weighted conflict policy.
func (e *Engine) supportWeight(ctx context.Context, m *core.MemoryRecord) (float64, error) {
	relations, err := e.driver.ListRelations(ctx, m.ID)
	if err != nil {
		return 0, err
	}
	total := 0.0
	for _, r := range relations {
		if r.RelationType != "supports" {
			continue
		}
		supporter, err := e.driver.GetMemory(ctx, r.TargetID)
		if err != nil {
			continue
		}
		total += supporter.Importance * r.Weight
	}
	return total, nil
}

var errManualWinnerNotInPair = &conflictError{"manual winner id is neither of the two conflicting memories"}
var errUnknownConflictPolicy = &conflictError{"unknown conflict resolution policy"}

type conflictError struct{ msg string }

func (e *conflictError) Error() string { return e.msg }
