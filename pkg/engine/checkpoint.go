package engine

import (
	"context"
	"time"

	"github.com/mnemohq/mnemo/pkg/core"
)

// MergeStrategy selects how Merge combines a source branch into a target
// (spec.md §4.5).
type MergeStrategy string

const (
	MergeFull       MergeStrategy = "full_merge"
	MergeCherryPick MergeStrategy = "cherry_pick"
	MergeSquash     MergeStrategy = "squash"
)

// Checkpoint snapshots state for (agentID, threadID, branchName), linking
// to the branch's current head and recording the live memory set and
// event cursor (spec.md §4.5).
func (e *Engine) Checkpoint(ctx context.Context, agentID, threadID string, snapshot map[string]interface{}, opts ...core.CheckpointOption) (*core.Checkpoint, error) {
	const op = "Checkpoint"
	o := core.ApplyCheckpointOptions(opts)

	refs, cursor, err := e.liveState(ctx, agentID, threadID)
	if err != nil {
		return nil, err
	}

	parentID := core.ID{}
	if head, err := e.driver.LatestCheckpoint(ctx, threadID, o.BranchName); err == nil && head != nil {
		parentID = head.ID
	}

	cp := &core.Checkpoint{
		ID:            core.NewID(),
		ThreadID:      threadID,
		AgentID:       agentID,
		ParentID:      parentID,
		BranchName:    o.BranchName,
		StateSnapshot: snapshot,
		MemoryRefs:    refs,
		EventCursor:   cursor,
		Label:         o.Label,
		CreatedAt:     time.Now(),
	}
	if err := e.driver.InsertCheckpoint(ctx, cp); err != nil {
		return nil, core.NewEngineError(op, core.KindStorage, err)
	}

	_, _ = e.appendEvent(ctx, agentID, threadID, core.ID{}, core.EventCheckpoint, map[string]interface{}{
		"checkpoint_id": cp.ID.String(),
		"branch_name":   cp.BranchName,
	})

	return cp, nil
}

// Branch creates a new branch diverging from sourceCheckpointID (else the
// head of sourceBranch, else the thread's main head), copying its snapshot
// and memory refs onto a fresh checkpoint on the new branch (spec.md §4.5).
func (e *Engine) Branch(ctx context.Context, agentID, threadID, sourceBranch, newBranchName string, sourceCheckpointID core.ID) (*core.Checkpoint, error) {
	const op = "Branch"

	source, err := e.resolveSource(ctx, threadID, sourceBranch, sourceCheckpointID)
	if err != nil {
		return nil, err
	}

	cp := &core.Checkpoint{
		ID:            core.NewID(),
		ThreadID:      threadID,
		AgentID:       agentID,
		ParentID:      source.ID,
		BranchName:    newBranchName,
		StateSnapshot: source.StateSnapshot,
		MemoryRefs:    source.MemoryRefs,
		EventCursor:   source.EventCursor,
		CreatedAt:     time.Now(),
	}
	if err := e.driver.InsertCheckpoint(ctx, cp); err != nil {
		return nil, core.NewEngineError(op, core.KindStorage, err)
	}

	_, _ = e.appendEvent(ctx, agentID, threadID, core.ID{}, core.EventBranch, map[string]interface{}{
		"checkpoint_id": cp.ID.String(),
		"source_branch": sourceBranch,
		"new_branch":    newBranchName,
	})

	return cp, nil
}

// Merge combines sourceBranch into targetBranch (default "main") per
// strategy: full_merge includes every memory introduced on source since
// divergence, cherry_pick restricts to cherryPickIDs, squash replaces them
// with a single caller-supplied synthetic memory (spec.md §4.5).
func (e *Engine) Merge(ctx context.Context, agentID, threadID, sourceBranch, targetBranch string, strategy MergeStrategy, cherryPickIDs []core.ID, squashContent string) (*core.Checkpoint, error) {
	const op = "Merge"
	if targetBranch == "" {
		targetBranch = core.DefaultBranch
	}

	sourceHead, err := e.driver.LatestCheckpoint(ctx, threadID, sourceBranch)
	if err != nil || sourceHead == nil {
		return nil, core.NewEngineError(op, core.KindNotFound, errNoSourceHead)
	}
	targetHead, err := e.driver.LatestCheckpoint(ctx, threadID, targetBranch)
	if err != nil {
		return nil, core.NewEngineError(op, core.KindStorage, err)
	}

	introduced, err := e.introducedSince(ctx, agentID, threadID, targetHead)
	if err != nil {
		return nil, err
	}

	var merged map[core.ID]struct{}
	var snapshot map[string]interface{}

	switch strategy {
	case MergeFull:
		merged = unionRefs(targetRefs(targetHead), introduced)
		snapshot = sourceHead.StateSnapshot

	case MergeCherryPick:
		picked := make(map[core.ID]struct{}, len(cherryPickIDs))
		for _, id := range cherryPickIDs {
			if _, ok := introduced[id]; ok {
				picked[id] = struct{}{}
			}
		}
		merged = unionRefs(targetRefs(targetHead), picked)
		snapshot = sourceHead.StateSnapshot

	case MergeSquash:
		squashed := &core.MemoryRecord{
			ID:                 core.NewID(),
			AgentID:            agentID,
			ThreadID:           threadID,
			Content:            squashContent,
			MemoryType:         core.MemoryEpisodic,
			Scope:              core.ScopePrivate,
			Importance:         0.5,
			ConsolidationState: core.StateActive,
			CreatedAt:          time.Now(),
			UpdatedAt:          time.Now(),
			Version:            1,
		}
		prevContentHash, _ := e.driver.GetLatestMemoryHash(ctx, agentID)
		squashed.ContentHash = core.HashMemoryContent(squashed)
		squashed.PrevHash = core.HashChainLink(squashed.ContentHash, prevContentHash)
		if err := e.driver.InsertMemory(ctx, squashed); err != nil {
			return nil, core.NewEngineError(op, core.KindStorage, err)
		}
		merged = unionRefs(targetRefs(targetHead), map[core.ID]struct{}{squashed.ID: {}})
		snapshot = sourceHead.StateSnapshot

	default:
		return nil, core.NewEngineError(op, core.KindValidation, errUnknownMergeStrategy)
	}

	parentID := core.ID{}
	if targetHead != nil {
		parentID = targetHead.ID
	}
	cursor := sourceHead.EventCursor

	cp := &core.Checkpoint{
		ID:            core.NewID(),
		ThreadID:      threadID,
		AgentID:       agentID,
		ParentID:      parentID,
		BranchName:    targetBranch,
		StateSnapshot: snapshot,
		MemoryRefs:    merged,
		EventCursor:   cursor,
		Label:         "merge:" + sourceBranch + "->" + targetBranch,
		CreatedAt:     time.Now(),
	}
	if err := e.driver.InsertCheckpoint(ctx, cp); err != nil {
		return nil, core.NewEngineError(op, core.KindStorage, err)
	}

	_, _ = e.appendEvent(ctx, agentID, threadID, core.ID{}, core.EventMerge, map[string]interface{}{
		"checkpoint_id": cp.ID.String(),
		"source_branch": sourceBranch,
		"target_branch": targetBranch,
		"strategy":      string(strategy),
	})

	return cp, nil
}

// ReplayResult is the outcome of Replay (spec.md §4.5, §8 property 7).
type ReplayResult struct {
	Checkpoint    *core.Checkpoint
	Memories      []*core.MemoryRecord
	Events        []*core.AgentEvent
	HashMismatches []core.ID
}

// Replay returns checkpointID's snapshot (else the latest on branchName)
// plus the memory set named by memory_refs and the event window up to
// event_cursor, verifying each memory's content hash record-by-record
// (spec.md §4.5).
func (e *Engine) Replay(ctx context.Context, threadID, branchName string, opts ...core.ReplayOption) (*ReplayResult, error) {
	const op = "Replay"
	o := core.ApplyReplayOptions(opts)
	if branchName == "" {
		branchName = core.DefaultBranch
	}

	var cp *core.Checkpoint
	var err error
	if !o.FromCheckpointID.IsZero() {
		cp, err = e.driver.GetCheckpoint(ctx, o.FromCheckpointID)
	} else {
		cp, err = e.driver.LatestCheckpoint(ctx, threadID, branchName)
	}
	if err != nil || cp == nil {
		return nil, core.NewEngineError(op, core.KindNotFound, errNoCheckpoint)
	}

	result := &ReplayResult{Checkpoint: cp}
	for id := range cp.MemoryRefs {
		m, err := e.driver.GetMemory(ctx, id)
		if err != nil {
			continue
		}
		plainForHash := *m
		if e.aead != nil {
			if plain, decErr := e.aead.Decrypt([]byte(m.Content)); decErr == nil {
				plainForHash.Content = string(plain)
			}
		}
		if !core.HashesEqual(core.HashMemoryContent(&plainForHash), m.ContentHash) {
			result.HashMismatches = append(result.HashMismatches, id)
		}
		result.Memories = append(result.Memories, m)
	}

	events, err := e.driver.ListEvents(ctx, cp.AgentID, threadID, core.ID{}, 0)
	if err != nil {
		return nil, core.NewEngineError(op, core.KindStorage, err)
	}
	for _, ev := range events {
		result.Events = append(result.Events, ev)
		if !o.ToEventID.IsZero() && ev.ID == o.ToEventID {
			break
		}
		if ev.ID == cp.EventCursor {
			break
		}
	}

	return result, nil
}

// liveState computes the non-deleted, non-forgotten memory set for a
// thread and the id of its last event, for use as a checkpoint's
// memory_refs/event_cursor.
func (e *Engine) liveState(ctx context.Context, agentID, threadID string) (map[core.ID]struct{}, core.ID, error) {
	ms, err := e.driver.ListMemories(ctx, core.MemoryFilter{AgentID: agentID, ThreadID: threadID, ExcludeDeleted: true}, 0, 0)
	if err != nil {
		return nil, core.ID{}, core.NewEngineError("Checkpoint", core.KindStorage, err)
	}
	refs := make(map[core.ID]struct{})
	for _, m := range ms {
		if m.ConsolidationState != core.StateForgotten {
			refs[m.ID] = struct{}{}
		}
	}

	events, err := e.driver.ListEvents(ctx, agentID, threadID, core.ID{}, 0)
	if err != nil {
		return nil, core.ID{}, core.NewEngineError("Checkpoint", core.KindStorage, err)
	}
	cursor := core.ID{}
	if len(events) > 0 {
		cursor = events[len(events)-1].ID
	}
	return refs, cursor, nil
}

func (e *Engine) resolveSource(ctx context.Context, threadID, sourceBranch string, sourceCheckpointID core.ID) (*core.Checkpoint, error) {
	if !sourceCheckpointID.IsZero() {
		cp, err := e.driver.GetCheckpoint(ctx, sourceCheckpointID)
		if err != nil {
			return nil, core.NewEngineError("Branch", core.KindNotFound, err)
		}
		return cp, nil
	}
	if sourceBranch != "" {
		if cp, err := e.driver.LatestCheckpoint(ctx, threadID, sourceBranch); err == nil && cp != nil {
			return cp, nil
		}
	}
	cp, err := e.driver.LatestCheckpoint(ctx, threadID, core.DefaultBranch)
	if err != nil || cp == nil {
		return nil, core.NewEngineError("Branch", core.KindNotFound, errNoCheckpoint)
	}
	return cp, nil
}

// introducedSince lists memories written on a thread after targetHead's
// event cursor, approximating "the set introduced on source since the
// divergence point" (spec.md §4.5 merge) by thread-scoped creation order.
func (e *Engine) introducedSince(ctx context.Context, agentID, threadID string, targetHead *core.Checkpoint) (map[core.ID]struct{}, error) {
	ms, err := e.driver.ListMemories(ctx, core.MemoryFilter{AgentID: agentID, ThreadID: threadID, ExcludeDeleted: true}, 0, 0)
	if err != nil {
		return nil, core.NewEngineError("Merge", core.KindStorage, err)
	}
	var divergedAt time.Time
	if targetHead != nil {
		divergedAt = targetHead.CreatedAt
	}
	out := make(map[core.ID]struct{})
	for _, m := range ms {
		if m.CreatedAt.After(divergedAt) {
			out[m.ID] = struct{}{}
		}
	}
	return out, nil
}

func targetRefs(cp *core.Checkpoint) map[core.ID]struct{} {
	if cp == nil {
		return map[core.ID]struct{}{}
	}
	return cp.MemoryRefs
}

func unionRefs(a, b map[core.ID]struct{}) map[core.ID]struct{} {
	out := make(map[core.ID]struct{}, len(a)+len(b))
	for id := range a {
		out[id] = struct{}{}
	}
	for id := range b {
		out[id] = struct{}{}
	}
	return out
}

var errNoSourceHead = &checkpointError{"source branch has no checkpoint"}
var errNoCheckpoint = &checkpointError{"no checkpoint found"}
var errUnknownMergeStrategy = &checkpointError{"unknown merge strategy"}

type checkpointError struct{ msg string }

func (e *checkpointError) Error() string { return e.msg }
