package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mnemohq/mnemo/pkg/core"
)

// Summarizer is the injected summarization function consolidation uses to
// turn a cluster of memories into one semantic summary (spec.md §4.7:
// "the summarizer is supplied by the caller — the core treats it as an
// injected function fn summarize(parts) -> text"). Adapted LLM clients in
// pkg/llm implement this.
type Summarizer interface {
	Summarize(ctx context.Context, parts []string) (string, error)
}

// ConsolidationConfig tunes clustering.
type ConsolidationConfig struct {
	JaccardThreshold float64
	MinClusterSize   int
	Window           time.Duration
}

// DefaultConsolidationConfig matches spec.md §4.7's defaults.
func DefaultConsolidationConfig() ConsolidationConfig {
	return ConsolidationConfig{JaccardThreshold: 0.5, MinClusterSize: 3, Window: 7 * 24 * time.Hour}
}

// Consolidator clusters candidate memories by tag-overlap and produces new
// semantic memories summarizing each cluster, grounded on the teacher's
// pkg/intelligence/dedup.go MergeMemories/averageEmbeddings shape,
// generalized from pairwise dedup to Jaccard-tag clustering.
type Consolidator struct {
	driver     core.Driver
	summarizer Summarizer
	cfg        ConsolidationConfig
}

// NewConsolidator builds a Consolidator. summarizer may be nil, in which
// case a plain concatenation fallback is used.
func NewConsolidator(driver core.Driver, summarizer Summarizer, cfg ConsolidationConfig) *Consolidator {
	if cfg.JaccardThreshold <= 0 {
		cfg.JaccardThreshold = 0.5
	}
	if cfg.MinClusterSize <= 0 {
		cfg.MinClusterSize = 3
	}
	return &Consolidator{driver: driver, summarizer: summarizer, cfg: cfg}
}

// Run clusters active/pending memories for agentID within the
// consolidation window and produces one new semantic memory per cluster of
// sufficient size (spec.md §4.7).
func (c *Consolidator) Run(ctx context.Context, agentID string, now time.Time) ([]*core.MemoryRecord, error) {
	since := now.Add(-c.cfg.Window)
	candidates, err := c.driver.ListMemories(ctx, core.MemoryFilter{
		AgentID:        agentID,
		Since:          &since,
		ExcludeDeleted: true,
	}, 0, 0)
	if err != nil {
		return nil, core.NewEngineError("Run", core.KindStorage, err)
	}

	eligible := make([]*core.MemoryRecord, 0, len(candidates))
	for _, m := range candidates {
		if m.ConsolidationState == core.StateActive || m.ConsolidationState == core.StatePending {
			eligible = append(eligible, m)
		}
	}

	clusters := clusterByTagOverlap(eligible, c.cfg.JaccardThreshold)

	var created []*core.MemoryRecord
	for _, cluster := range clusters {
		if len(cluster) < c.cfg.MinClusterSize {
			continue
		}

		parts := make([]string, len(cluster))
		maxImportance := 0.0
		unionTags := make(map[string]struct{})
		for i, m := range cluster {
			parts[i] = m.Content
			if m.Importance > maxImportance {
				maxImportance = m.Importance
			}
			for t := range m.Tags {
				unionTags[t] = struct{}{}
			}
		}

		summary, err := c.summarize(ctx, parts)
		if err != nil {
			return created, core.NewEngineError("Run", core.KindInternal, err)
		}

		consolidated := &core.MemoryRecord{
			ID:                 core.NewID(),
			AgentID:            agentID,
			Content:            summary,
			MemoryType:         core.MemorySemantic,
			Scope:              cluster[0].Scope,
			Importance:         maxImportance,
			Tags:               unionTags,
			Metadata:           map[string]interface{}{"consolidated_from": len(cluster)},
			CreatedAt:          now,
			UpdatedAt:          now,
			ConsolidationState: core.StateConsolidated,
			Version:            1,
		}
		prevContentHash, err := c.driver.GetLatestMemoryHash(ctx, agentID)
		if err != nil {
			return created, core.NewEngineError("Run", core.KindStorage, err)
		}
		consolidated.ContentHash = core.HashMemoryContent(consolidated)
		consolidated.PrevHash = core.HashChainLink(consolidated.ContentHash, prevContentHash)
		if err := c.driver.InsertMemory(ctx, consolidated); err != nil {
			return created, core.NewEngineError("Run", core.KindStorage, err)
		}

		for _, m := range cluster {
			if err := c.driver.InsertRelation(ctx, &core.Relation{
				ID:           core.NewID(),
				SourceID:     consolidated.ID,
				TargetID:     m.ID,
				RelationType: "derived_from",
				Weight:       1.0,
				CreatedAt:    now,
			}); err != nil {
				return created, core.NewEngineError("Run", core.KindStorage, err)
			}

			m.ConsolidationState = core.StateConsolidated
			m.Importance *= 0.5
			m.UpdatedAt = now
			if err := c.driver.UpdateMemory(ctx, m); err != nil {
				return created, core.NewEngineError("Run", core.KindStorage, err)
			}
		}

		created = append(created, consolidated)
	}

	return created, nil
}

func (c *Consolidator) summarize(ctx context.Context, parts []string) (string, error) {
	if c.summarizer != nil {
		return c.summarizer.Summarize(ctx, parts)
	}
	return fmt.Sprintf("consolidated summary of %d memories: %s", len(parts), strings.Join(parts, " | ")), nil
}

// clusterByTagOverlap greedily groups memories whose tag sets have Jaccard
// similarity >= threshold with the cluster's seed member.
func clusterByTagOverlap(memories []*core.MemoryRecord, threshold float64) [][]*core.MemoryRecord {
	used := make(map[core.ID]bool)
	var clusters [][]*core.MemoryRecord

	for _, seed := range memories {
		if used[seed.ID] {
			continue
		}
		cluster := []*core.MemoryRecord{seed}
		used[seed.ID] = true

		for _, other := range memories {
			if used[other.ID] {
				continue
			}
			if jaccard(seed.Tags, other.Tags) >= threshold {
				cluster = append(cluster, other)
				used[other.ID] = true
			}
		}
		clusters = append(clusters, cluster)
	}
	return clusters
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for t := range a {
		if _, ok := b[t]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
