package engine

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/mnemohq/mnemo/pkg/core"
)

// Strategy selects a recall ranking pipeline (spec.md §4.2).
type Strategy string

const (
	StrategyExact    Strategy = "exact"
	StrategySemantic Strategy = "semantic"
	StrategyLexical  Strategy = "lexical"
	StrategyGraph    Strategy = "graph"
	StrategyHybrid   Strategy = "hybrid"
	StrategyAuto     Strategy = "auto"
)

const defaultRRFK = 60.0
const defaultRecencyHalfLife = 168 * time.Hour

// RecallHit is one ranked recall result (spec.md §4.2 output shape).
type RecallHit struct {
	ID         core.ID
	AgentID    string
	Content    string
	MemoryType core.MemoryType
	Scope      core.Scope
	Importance float64
	Tags       []string
	Score      float64
	CreatedAt  time.Time
	UpdatedAt  time.Time

	// DecryptionFailed is set when the record's content could not be
	// decrypted; Content is then empty rather than ciphertext.
	DecryptionFailed bool
}

// Recall runs the hybrid retrieval pipeline of spec.md §4.2 on behalf of
// principalID (the caller, which may differ from the memories' owning
// agent when recalling shared or delegated memories).
func (e *Engine) Recall(ctx context.Context, principalID, query string, strategy Strategy, opts ...core.RecallOption) ([]*RecallHit, error) {
	const op = "Recall"
	o := core.ApplyRecallOptions(opts)
	if o.Limit <= 0 {
		o.Limit = 10
	}
	if o.Limit > 100 {
		o.Limit = 100
	}
	now := time.Now()

	allowed, err := e.authz.AccessibleIDs(ctx, principalID)
	if err != nil {
		return nil, core.NewEngineError(op, core.KindStorage, err)
	}
	allowedSet := make(map[core.ID]struct{}, len(allowed))
	for _, id := range allowed {
		allowedSet[id] = struct{}{}
	}

	// Branch isolation (spec.md §4.5, §8 scenario S6): a query scoped to a
	// thread only ever sees memories written on its branch, plus whatever
	// that branch inherited at its fork point via the branch head's
	// memory_refs. Without a thread there is no branch to resolve against,
	// so no branch filtering applies.
	var branchScope map[core.ID]struct{}
	if o.ThreadID != "" {
		branchScope, err = e.branchScope(ctx, o.ThreadID, o.BranchName)
		if err != nil {
			return nil, err
		}
	}

	if strategy == "" || strategy == StrategyAuto {
		if query == "" {
			strategy = StrategyExact
		} else {
			strategy = StrategyHybrid
		}
	}

	var candidates []*core.MemoryRecord
	var ranked []core.ID
	var scores map[core.ID]float64

	switch strategy {
	case StrategyExact:
		candidates, err = e.listFiltered(ctx, o, allowedSet)
		if err != nil {
			return nil, err
		}
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].CreatedAt.After(candidates[j].CreatedAt) })
		ranked = idsOf(candidates)
		scores = rankScores(ranked)

	case StrategySemantic:
		ranked, scores, candidates, err = e.semanticRank(ctx, query, o.Limit, allowedSet)
		if err != nil {
			return nil, err
		}

	case StrategyLexical:
		ranked, scores, candidates, err = e.lexicalRank(ctx, query, o.Limit, allowedSet)
		if err != nil {
			return nil, err
		}

	case StrategyGraph:
		ranked, scores, candidates, err = e.graphRank(ctx, query, o.Limit, allowedSet)
		if err != nil {
			return nil, err
		}

	case StrategyHybrid:
		ranked, scores, candidates, err = e.hybridRank(ctx, query, o, allowedSet, now)
		if err != nil {
			return nil, err
		}

	default:
		return nil, core.NewEngineError(op, core.KindValidation, errUnknownStrategy(strategy))
	}

	byID := make(map[core.ID]*core.MemoryRecord, len(candidates))
	for _, m := range candidates {
		byID[m.ID] = m
	}

	hits := make([]*RecallHit, 0, len(ranked))
	for _, id := range ranked {
		m, ok := byID[id]
		if !ok {
			continue
		}
		if m.Excluded(now) {
			continue
		}
		if branchScope != nil {
			if _, ok := branchScope[id]; !ok {
				continue
			}
		}
		if !passesFilters(m, o) {
			continue
		}
		score := scores[id]
		if score < o.MinScore {
			continue
		}
		hits = append(hits, e.toHit(m, score))
		if len(hits) >= o.Limit {
			break
		}
	}

	// Side effects: increment access_count/last_accessed, then append the
	// retrieval_query/retrieval_result event pair (spec.md §4.2).
	for _, h := range hits {
		if m, ok := byID[h.ID]; ok {
			m.AccessCount++
			accessed := now
			m.LastAccessedAt = &accessed
			_ = e.driver.UpdateMemory(ctx, m)
		}
	}

	queryEvent, err := e.appendEvent(ctx, callerAgent(principalID, candidates), o.ThreadID, core.ID{}, core.EventRetrievalQuery, map[string]interface{}{
		"query": query, "strategy": string(strategy),
	})
	if err == nil {
		resultIDs := make([]string, 0, len(hits))
		for _, h := range hits {
			resultIDs = append(resultIDs, h.ID.String())
		}
		parent := core.ID{}
		if queryEvent != nil {
			parent = queryEvent.ID
		}
		_, _ = e.appendEvent(ctx, callerAgent(principalID, candidates), o.ThreadID, parent, core.EventRetrievalResult, map[string]interface{}{
			"result_ids": resultIDs,
		})
	}

	return hits, nil
}

// callerAgent picks the agent whose event chain the retrieval pair is
// appended to: always principalID, the agent that issued the query, even
// when the hits were reached through shares. The candidates argument is
// not used.
func callerAgent(principalID string, _ []*core.MemoryRecord) string {
	return principalID
}

func errUnknownStrategy(s Strategy) error {
	return &strategyError{s}
}

type strategyError struct{ s Strategy }

func (e *strategyError) Error() string { return "unknown recall strategy: " + string(e.s) }

func idsOf(ms []*core.MemoryRecord) []core.ID {
	out := make([]core.ID, len(ms))
	for i, m := range ms {
		out[i] = m.ID
	}
	return out
}

// rankScores assigns a descending synthetic score by rank position, used
// for strategies (exact) that have no native relevance score of their own.
func rankScores(ids []core.ID) map[core.ID]float64 {
	out := make(map[core.ID]float64, len(ids))
	for i, id := range ids {
		out[id] = 1.0 / float64(i+1)
	}
	return out
}

// branchScope computes the set of memory ids visible on (threadID,
// branchName): every memory written directly on that branch, unioned with
// whatever the branch's latest checkpoint inherited from its fork point
// (spec.md §4.5, §4.8). A thread with no checkpoints yet resolves to just
// the directly-tagged memories.
func (e *Engine) branchScope(ctx context.Context, threadID, branchName string) (map[core.ID]struct{}, error) {
	if branchName == "" {
		branchName = core.DefaultBranch
	}

	scope := make(map[core.ID]struct{})
	if head, err := e.driver.LatestCheckpoint(ctx, threadID, branchName); err == nil && head != nil {
		for id := range head.MemoryRefs {
			scope[id] = struct{}{}
		}
	}

	ms, err := e.driver.ListMemories(ctx, core.MemoryFilter{ThreadID: threadID, ExcludeDeleted: true}, 0, 0)
	if err != nil {
		return nil, core.NewEngineError("Recall", core.KindStorage, err)
	}
	for _, m := range ms {
		if m.BranchName == branchName {
			scope[m.ID] = struct{}{}
		}
	}
	return scope, nil
}

func (e *Engine) listFiltered(ctx context.Context, o *core.RecallOptions, allowed map[core.ID]struct{}) ([]*core.MemoryRecord, error) {
	f := core.MemoryFilter{
		OrgID:          o.OrgID,
		ThreadID:       o.ThreadID,
		MemoryTypes:    o.MemoryTypes,
		Tags:           o.Tags,
		Since:          o.Since,
		Until:          o.Until,
		ExcludeDeleted: true,
	}
	all, err := e.driver.ListMemories(ctx, f, 0, 0)
	if err != nil {
		return nil, core.NewEngineError("Recall", core.KindStorage, err)
	}
	return filterAllowed(all, allowed), nil
}

func filterAllowed(ms []*core.MemoryRecord, allowed map[core.ID]struct{}) []*core.MemoryRecord {
	out := make([]*core.MemoryRecord, 0, len(ms))
	for _, m := range ms {
		if _, ok := allowed[m.ID]; ok {
			out = append(out, m)
		}
	}
	return out
}

func passesFilters(m *core.MemoryRecord, o *core.RecallOptions) bool {
	if o.OrgID != "" && m.OrgID != o.OrgID {
		return false
	}
	if o.ThreadID != "" && m.ThreadID != o.ThreadID {
		return false
	}
	if len(o.MemoryTypes) > 0 && !containsType(o.MemoryTypes, m.MemoryType) {
		return false
	}
	if len(o.Tags) > 0 && !anyTagMatch(m, o.Tags) {
		return false
	}
	if o.Since != nil && m.CreatedAt.Before(*o.Since) {
		return false
	}
	if o.Until != nil && m.CreatedAt.After(*o.Until) {
		return false
	}
	return true
}

func containsType(types []core.MemoryType, t core.MemoryType) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}

func anyTagMatch(m *core.MemoryRecord, tags []string) bool {
	for _, t := range tags {
		if m.HasTag(t) {
			return true
		}
	}
	return false
}

// semanticRank embeds query, then runs permission-safe ANN search via the
// index's own FilteredSearch against a precomputed allowlist (spec.md §4.2).
func (e *Engine) semanticRank(ctx context.Context, query string, limit int, allowed map[core.ID]struct{}) ([]core.ID, map[core.ID]float64, []*core.MemoryRecord, error) {
	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, nil, nil, core.NewEngineError("Recall", core.KindEmbedding, err)
	}

	results, err := e.vectors.FilteredSearch(vec, limit, allowed)
	if err != nil {
		return nil, nil, nil, core.NewEngineError("Recall", core.KindIndex, err)
	}

	ids := make([]core.ID, 0, len(results))
	scores := make(map[core.ID]float64, len(results))
	for _, r := range results {
		ids = append(ids, r.ID)
		scores[r.ID] = r.Score
	}

	ms, err := e.fetchMany(ctx, ids)
	if err != nil {
		return nil, nil, nil, err
	}
	return ids, scores, ms, nil
}

func (e *Engine) lexicalRank(ctx context.Context, query string, limit int, allowed map[core.ID]struct{}) ([]core.ID, map[core.ID]float64, []*core.MemoryRecord, error) {
	results, err := e.lexical.Search(query, limit, allowed)
	if err != nil {
		return nil, nil, nil, core.NewEngineError("Recall", core.KindIndex, err)
	}
	ids := make([]core.ID, 0, len(results))
	scores := make(map[core.ID]float64, len(results))
	for _, r := range results {
		ids = append(ids, r.ID)
		scores[r.ID] = r.Score
	}
	ms, err := e.fetchMany(ctx, ids)
	if err != nil {
		return nil, nil, nil, err
	}
	return ids, scores, ms, nil
}

// graphRank expands a semantic seed set up to 2 hops via Relations,
// propagating weight as w_child = w_parent * edge_weight * 0.5^hop, and
// scoring by the maximum propagated weight reaching each memory (spec.md
// §4.2).
func (e *Engine) graphRank(ctx context.Context, query string, limit int, allowed map[core.ID]struct{}) ([]core.ID, map[core.ID]float64, []*core.MemoryRecord, error) {
	seedIDs, seedScores, _, err := e.semanticRank(ctx, query, limit, allowed)
	if err != nil {
		return nil, nil, nil, err
	}

	propagated := make(map[core.ID]float64, len(seedIDs))
	for _, id := range seedIDs {
		propagated[id] = seedScores[id]
	}

	frontier := append([]core.ID(nil), seedIDs...)
	for hop := 1; hop <= 2; hop++ {
		next := make([]core.ID, 0)
		decay := math.Pow(0.5, float64(hop))
		for _, id := range frontier {
			rels, err := e.driver.ListRelations(ctx, id)
			if err != nil {
				return nil, nil, nil, core.NewEngineError("Recall", core.KindStorage, err)
			}
			parentWeight := propagated[id]
			for _, rel := range rels {
				if _, ok := allowed[rel.TargetID]; !ok {
					continue
				}
				w := parentWeight * rel.Weight * decay
				if w > propagated[rel.TargetID] {
					propagated[rel.TargetID] = w
					next = append(next, rel.TargetID)
				}
			}
		}
		frontier = next
	}

	ids := make([]core.ID, 0, len(propagated))
	for id := range propagated {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return propagated[ids[i]] > propagated[ids[j]] })

	ms, err := e.fetchMany(ctx, ids)
	if err != nil {
		return nil, nil, nil, err
	}
	return ids, propagated, ms, nil
}

// hybridRank computes four ranked lists (semantic, lexical, recency,
// graph) and fuses them by Reciprocal Rank Fusion: score(m) = sum of
// w_list / (k + rank_list(m)) over lists containing m (spec.md §4.2, §8
// property/scenario S5).
func (e *Engine) hybridRank(ctx context.Context, query string, o *core.RecallOptions, allowed map[core.ID]struct{}, now time.Time) ([]core.ID, map[core.ID]float64, []*core.MemoryRecord, error) {
	semIDs, _, semMs, err := e.semanticRank(ctx, query, o.Limit*3, allowed)
	if err != nil {
		return nil, nil, nil, err
	}
	lexIDs, _, lexMs, err := e.lexicalRank(ctx, query, o.Limit*3, allowed)
	if err != nil {
		return nil, nil, nil, err
	}
	graphIDs, _, graphMs, err := e.graphRank(ctx, query, o.Limit*3, allowed)
	if err != nil {
		return nil, nil, nil, err
	}

	all, err := e.listFiltered(ctx, o, allowed)
	if err != nil {
		return nil, nil, nil, err
	}
	recencyIDs := append([]*core.MemoryRecord(nil), all...)
	sort.Slice(recencyIDs, func(i, j int) bool {
		return recencyScore(recencyIDs[i], now) > recencyScore(recencyIDs[j], now)
	})
	recIDs := idsOf(recencyIDs)

	type rankedList struct {
		name string
		ids  []core.ID
	}
	lists := []rankedList{
		{"semantic", semIDs},
		{"lexical", lexIDs},
		{"recency", recIDs},
		{"graph", graphIDs},
	}

	k := defaultRRFK
	if o.RRFK > 0 {
		k = o.RRFK
	}

	// Each list contributes with weight 1 unless the caller overrides it
	// via WithHybridWeights; fusion is not divided by the number of lists,
	// since RRF's own rank-offset k already controls each list's
	// contribution (spec.md §4.2, §8 property/scenario S5).
	fused := make(map[core.ID]float64)
	for _, list := range lists {
		weight := 1.0
		if o.HybridWeights != nil {
			if w, ok := o.HybridWeights[list.name]; ok {
				weight = w
			}
		}
		for rank, id := range list.ids {
			fused[id] += weight / (k + float64(rank+1))
		}
	}

	ids := make([]core.ID, 0, len(fused))
	for id := range fused {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return fused[ids[i]] > fused[ids[j]] })

	byID := make(map[core.ID]*core.MemoryRecord)
	for _, group := range [][]*core.MemoryRecord{semMs, lexMs, graphMs, all} {
		for _, m := range group {
			byID[m.ID] = m
		}
	}
	ms := make([]*core.MemoryRecord, 0, len(byID))
	for _, m := range byID {
		ms = append(ms, m)
	}

	return ids, fused, ms, nil
}

func recencyScore(m *core.MemoryRecord, now time.Time) float64 {
	ageHours := now.Sub(m.CreatedAt).Hours()
	if ageHours < 0 {
		ageHours = 0
	}
	halfLifeHours := defaultRecencyHalfLife.Hours()
	return math.Exp(-ageHours * math.Ln2 / halfLifeHours)
}

func (e *Engine) fetchMany(ctx context.Context, ids []core.ID) ([]*core.MemoryRecord, error) {
	out := make([]*core.MemoryRecord, 0, len(ids))
	for _, id := range ids {
		m, err := e.driver.GetMemory(ctx, id)
		if err != nil {
			continue // deleted/missing between index and storage; skip rather than fail the whole recall
		}
		out = append(out, m)
	}
	return out, nil
}

func (e *Engine) toHit(m *core.MemoryRecord, score float64) *RecallHit {
	content := m.Content
	decryptionFailed := false
	if e.aead != nil {
		plain, err := e.aead.Decrypt([]byte(m.Content))
		if err != nil {
			content = ""
			decryptionFailed = true
		} else {
			content = string(plain)
		}
	}
	return &RecallHit{
		ID:               m.ID,
		AgentID:          m.AgentID,
		Content:          content,
		MemoryType:       m.MemoryType,
		Scope:            m.Scope,
		Importance:       m.Importance,
		Tags:             m.TagSlice(),
		Score:            score,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
		DecryptionFailed: decryptionFailed,
	}
}
