package engine

import (
	"context"
	"errors"
	"time"

	"github.com/mnemohq/mnemo/pkg/core"
	"github.com/mnemohq/mnemo/pkg/lifecycle"
)

// RememberResult is the outcome of a Remember call (spec.md §4.1 output).
type RememberResult struct {
	ID            core.ID
	ContentHash   [32]byte
	Status        core.Status
	Quarantined   bool
	IndexWarnings []error
}

// Remember writes a new memory through the ten-step pipeline of spec.md
// §4.1: validate, embed, encrypt, chain-link, persist, index, score, update
// profile, relate, and append a memory_write event.
func (e *Engine) Remember(ctx context.Context, agentID, content string, opts ...core.RememberOption) (*RememberResult, error) {
	const op = "Remember"

	// Step 1: validate.
	if err := validateAgentID(agentID); err != nil {
		return nil, validationErr(op, err)
	}
	if err := validateContent(content); err != nil {
		return nil, validationErr(op, err)
	}
	o := core.ApplyRememberOptions(opts)
	if err := validateImportance(o.Importance); err != nil {
		return nil, validationErr(op, err)
	}
	e.trackAgent(agentID)

	now := time.Now()

	// Step 2: embed. Transient provider errors surface as KindEmbedding and
	// the memory is not written.
	embedding, err := e.embedder.Embed(ctx, content)
	if err != nil {
		return nil, core.NewEngineError(op, core.KindEmbedding, err)
	}

	// Step 3: encrypt content if a cipher is configured. Plaintext is kept
	// only in locals for hashing; the persisted record carries ciphertext.
	storedContent := content
	if e.aead != nil {
		ciphertext, encErr := e.aead.Encrypt([]byte(content))
		if encErr != nil {
			return nil, core.NewEngineError(op, core.KindDecryption, encErr)
		}
		storedContent = string(ciphertext)
	}

	m := &core.MemoryRecord{
		ID:                 core.NewID(),
		AgentID:            agentID,
		OrgID:              o.OrgID,
		ThreadID:           o.ThreadID,
		BranchName:         o.BranchName,
		Content:            storedContent,
		Embedding:          embedding,
		MemoryType:         o.MemoryType,
		Scope:              o.Scope,
		Importance:         o.Importance,
		Tags:               tagSet(o.Tags),
		Metadata:           o.Metadata,
		CreatedAt:          now,
		UpdatedAt:          now,
		ConsolidationState: core.StateActive,
		Provenance: core.Provenance{
			CreatedBy:  agentID,
			SourceType: o.SourceType,
			SourceID:   o.SourceID,
		},
		Version: 1,
	}
	if o.TTL != nil {
		expiry := now.Add(*o.TTL)
		m.ExpiresAt = &expiry
	}
	if o.DecayRate != nil {
		m.DecayRate = o.DecayRate
	}

	// Step 4: chain link. The prior-hash read and this record's insert must
	// be linearized per agent; the storage backend's per-agent lock
	// (spec.md §5) covers the read-then-insert critical section as long as
	// both happen while that memory's content_hash is computed from data
	// already in hand here, so no extra coordinator-level lock is needed:
	// InsertMemory below takes the per-agent lock before touching the
	// chain's tail.
	prevContentHash, err := e.driver.GetLatestMemoryHash(ctx, agentID)
	if err != nil {
		return nil, core.NewEngineError(op, core.KindStorage, err)
	}
	// HashMemoryContent folds content (plaintext, not ciphertext) into the
	// commitment via m.Content — hash over plaintext per spec.md §3, so
	// swap it in only for the hash computation.
	plainForHash := *m
	plainForHash.Content = content
	m.ContentHash = core.HashMemoryContent(&plainForHash)
	m.PrevHash = core.HashChainLink(m.ContentHash, prevContentHash)

	// Step 5: persist.
	if err := e.driver.InsertMemory(ctx, m); err != nil {
		return nil, core.NewEngineError(op, core.KindStorage, err)
	}

	// Step 6: index. Failures are surfaced to the caller as IndexWarnings,
	// not fatal — the memory already committed to storage and indexes may
	// be rebuilt from it later (spec.md §4.1 step 6, §4.8).
	var indexWarnings []error
	if len(embedding) > 0 {
		if err := e.vectors.Add(m.ID, embedding); err != nil {
			indexWarnings = append(indexWarnings, core.NewEngineError(op, core.KindIndex, err))
		}
	}
	if err := e.lexical.Add(m.ID, content); err != nil {
		indexWarnings = append(indexWarnings, core.NewEngineError(op, core.KindIndex, err))
	}

	// Step 7: anomaly scoring.
	profile, _ := e.driver.GetAgentProfile(ctx, agentID)
	score, quarantine := lifecycle.Score(m, profile, now, lifecycle.DefaultAnomalyConfig())
	if quarantine {
		m.Quarantined = true
		m.QuarantineReason = quarantineReason(score)
		if err := e.driver.UpdateMemory(ctx, m); err != nil {
			return nil, core.NewEngineError(op, core.KindStorage, err)
		}
	}

	// Step 8: update AgentProfile.
	profile = lifecycle.UpdateProfile(profile, m, now)
	if err := e.driver.UpsertAgentProfile(ctx, profile); err != nil {
		return nil, core.NewEngineError(op, core.KindStorage, err)
	}

	// Step 9: relate. related_to targets are handled by RememberRelated,
	// which calls Remember then links relations so missing targets yield
	// per-relation errors without blocking the memory write itself.

	// Step 10: append the memory_write event. Failures here must not be
	// swallowed: surface to the caller as a warning alongside the
	// successful write, per spec.md §4.1 step 10.
	payload := map[string]interface{}{
		"memory_id":    m.ID.String(),
		"content_hash": m.ContentHash,
	}
	if _, eventErr := e.appendEvent(ctx, agentID, o.ThreadID, core.ID{}, core.EventMemoryWrite, payload); eventErr != nil {
		return &RememberResult{ID: m.ID, ContentHash: m.ContentHash, Status: core.StatusRemembered, Quarantined: m.Quarantined, IndexWarnings: indexWarnings},
			core.NewEngineError(op, core.KindStorage, eventErr)
	}

	return &RememberResult{
		ID:            m.ID,
		ContentHash:   m.ContentHash,
		Status:        core.StatusRemembered,
		Quarantined:   m.Quarantined,
		IndexWarnings: indexWarnings,
	}, nil
}

// RememberRelated is Remember, additionally linking the new memory to an
// existing set via "related_to" relations (spec.md §4.1 step 9's
// related_to input, kept as a distinct entry point so Remember's signature
// stays uncluttered for the common no-relation case). A missing target or a
// failed relation insert is reported as one joined error alongside the
// result; the memory itself stays committed.
func (e *Engine) RememberRelated(ctx context.Context, agentID, content string, relatedTo []core.ID, opts ...core.RememberOption) (*RememberResult, error) {
	res, err := e.Remember(ctx, agentID, content, opts...)
	if err != nil || len(relatedTo) == 0 {
		return res, err
	}
	now := time.Now()
	var relErrs []error
	for _, targetID := range relatedTo {
		rel := &core.Relation{
			ID:           core.NewID(),
			SourceID:     res.ID,
			TargetID:     targetID,
			RelationType: "related_to",
			Weight:       1.0,
			CreatedAt:    now,
		}
		if _, err := e.driver.GetMemory(ctx, targetID); err != nil {
			relErrs = append(relErrs, core.NewEngineError("RememberRelated", core.KindNotFound, err))
			continue
		}
		if err := e.driver.InsertRelation(ctx, rel); err != nil {
			relErrs = append(relErrs, core.NewEngineError("RememberRelated", core.KindStorage, err))
		}
	}
	return res, errors.Join(relErrs...)
}

func tagSet(tags []string) map[string]struct{} {
	out := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		out[t] = struct{}{}
	}
	return out
}

func quarantineReason(score float64) string {
	return "anomaly score " + trimFloat(score) + " crossed quarantine threshold"
}
