package engine

import (
	"context"
	"sort"

	"github.com/mnemohq/mnemo/pkg/core"
)

// VerifyReport is the outcome of Verify (spec.md §4.9).
type VerifyReport struct {
	Valid          bool
	Total          int
	Verified       int
	FirstBrokenAt  core.ID
	ErrorMessage   string
	DeletionGaps   []core.ID // memory ids whose chain gap is explained by a matching memory_delete event
}

// Verify walks the memory chain and the event chain for (agentID, threadID)
// in creation order, recomputing each record's content_hash and comparing
// prev_hash/content_hash links with constant-time comparison. It returns
// {valid, total, verified, first_broken_at, error_message} and, for memory
// chain breaks explained by a corresponding memory_delete event with a
// matching predecessor hash, reports them as labeled gaps rather than
// tampering (spec.md §4.9).
func (e *Engine) Verify(ctx context.Context, agentID, threadID string) (*VerifyReport, error) {
	const op = "Verify"

	memReport, err := e.verifyMemoryChain(ctx, agentID, threadID)
	if err != nil {
		return nil, core.NewEngineError(op, core.KindStorage, err)
	}
	if !memReport.Valid {
		return memReport, nil
	}

	evReport, err := e.verifyEventChain(ctx, agentID, threadID)
	if err != nil {
		return nil, core.NewEngineError(op, core.KindStorage, err)
	}
	evReport.DeletionGaps = memReport.DeletionGaps
	evReport.Total += memReport.Total
	evReport.Verified += memReport.Verified
	return evReport, nil
}

func (e *Engine) verifyMemoryChain(ctx context.Context, agentID, threadID string) (*VerifyReport, error) {
	f := core.MemoryFilter{AgentID: agentID, ThreadID: threadID}
	memories, err := e.driver.ListMemories(ctx, f, 0, 0)
	if err != nil {
		return nil, err
	}
	sort.Slice(memories, func(i, j int) bool { return memories[i].ID.Compare(memories[j].ID) < 0 })

	report := &VerifyReport{Valid: true, Total: len(memories)}
	var prevContentHash [32]byte

	deleteEvents, err := e.driver.ListEvents(ctx, agentID, threadID, core.ID{}, 0)
	if err != nil {
		return nil, err
	}
	deletedHashes := make(map[[32]byte]bool)
	for _, ev := range deleteEvents {
		if ev.EventType != core.EventMemoryDelete {
			continue
		}
		if raw, ok := ev.Payload["content_hash"]; ok {
			if h, ok := raw.([32]byte); ok {
				deletedHashes[h] = true
			}
		}
	}

	for _, m := range memories {
		recomputed := core.HashMemoryContent(m)
		if !core.HashesEqual(recomputed, m.ContentHash) {
			report.Valid = false
			report.FirstBrokenAt = m.ID
			report.ErrorMessage = "content_hash mismatch: record content does not match its commitment"
			return report, nil
		}
		if !core.HashesEqual(m.PrevHash, core.HashChainLink(m.ContentHash, prevContentHash)) {
			// The immediate predecessor may have been hard-deleted, whose
			// content_hash no longer appears in storage; check whether any
			// deleted memory's content_hash would explain this link before
			// calling it tampering.
			gapExplained := false
			for deleted := range deletedHashes {
				if core.HashesEqual(m.PrevHash, core.HashChainLink(m.ContentHash, deleted)) {
					gapExplained = true
					break
				}
			}
			if gapExplained {
				report.DeletionGaps = append(report.DeletionGaps, m.ID)
			} else {
				report.Valid = false
				report.FirstBrokenAt = m.ID
				report.ErrorMessage = "prev_hash does not match predecessor's content_hash"
				return report, nil
			}
		}
		prevContentHash = m.ContentHash
		report.Verified++
	}

	return report, nil
}

func (e *Engine) verifyEventChain(ctx context.Context, agentID, threadID string) (*VerifyReport, error) {
	events, err := e.driver.ListEvents(ctx, agentID, threadID, core.ID{}, 0)
	if err != nil {
		return nil, err
	}

	report := &VerifyReport{Valid: true, Total: len(events)}
	var prevHash [32]byte

	for _, ev := range events {
		recomputed := core.HashEventContent(ev)
		if !core.HashesEqual(recomputed, ev.ContentHash) {
			report.Valid = false
			report.FirstBrokenAt = ev.ID
			report.ErrorMessage = "event content_hash mismatch: record content does not match its commitment"
			return report, nil
		}
		if !core.HashesEqual(ev.PrevHash, prevHash) {
			report.Valid = false
			report.FirstBrokenAt = ev.ID
			report.ErrorMessage = "event prev_hash does not match predecessor's content_hash"
			return report, nil
		}
		prevHash = ev.ContentHash
		report.Verified++
	}

	return report, nil
}
