package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemohq/mnemo/pkg/core"
)

func TestRecallExactReturnsOwnMemoriesNewestFirst(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	first, err := e.Remember(ctx, "agent-1", "first note")
	require.NoError(t, err)
	second, err := e.Remember(ctx, "agent-1", "second note")
	require.NoError(t, err)

	hits, err := e.Recall(ctx, "agent-1", "", StrategyExact)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, second.ID, hits[0].ID)
	assert.Equal(t, first.ID, hits[1].ID)
}

func TestRecallLexicalFindsMatchingContent(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	_, err := e.Remember(ctx, "agent-1", "the espresso machine needs descaling")
	require.NoError(t, err)
	_, err = e.Remember(ctx, "agent-1", "the weather today is sunny")
	require.NoError(t, err)

	hits, err := e.Recall(ctx, "agent-1", "espresso descaling", StrategyLexical)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Contains(t, hits[0].Content, "espresso")
}

func TestRecallHybridFusesAcrossStrategies(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	_, err := e.Remember(ctx, "agent-1", "the rocket launch is scheduled for tomorrow")
	require.NoError(t, err)
	_, err = e.Remember(ctx, "agent-1", "bananas are a good source of potassium")
	require.NoError(t, err)

	hits, err := e.Recall(ctx, "agent-1", "rocket launch", StrategyHybrid)
	require.NoError(t, err)
	assert.NotEmpty(t, hits)
}

func TestRecallExcludesOtherAgentsMemoriesWithoutAccess(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	_, err := e.Remember(ctx, "agent-1", "agent one's private note")
	require.NoError(t, err)

	hits, err := e.Recall(ctx, "agent-2", "", StrategyExact)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestRecallUpdatesAccessCountOnHit(t *testing.T) {
	e, driver := newTestEngine()
	ctx := context.Background()

	res, err := e.Remember(ctx, "agent-1", "a note that will be recalled")
	require.NoError(t, err)

	_, err = e.Recall(ctx, "agent-1", "", StrategyExact)
	require.NoError(t, err)

	m, err := driver.GetMemory(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.AccessCount)
	assert.NotNil(t, m.LastAccessedAt)
}

func TestRecallAppendsRetrievalEventPair(t *testing.T) {
	e, driver := newTestEngine()
	ctx := context.Background()

	_, err := e.Remember(ctx, "agent-1", "a note")
	require.NoError(t, err)
	_, err = e.Recall(ctx, "agent-1", "note", StrategyLexical)
	require.NoError(t, err)

	events, err := driver.ListEvents(ctx, "agent-1", "", core.ID{}, 0)
	require.NoError(t, err)

	var query, result bool
	for _, ev := range events {
		if ev.EventType == core.EventRetrievalQuery {
			query = true
		}
		if ev.EventType == core.EventRetrievalResult {
			result = true
			assert.Equal(t, true, ev.ParentEventID.Compare(core.ID{}) != 0, "retrieval_result must point back to its retrieval_query parent")
		}
	}
	assert.True(t, query)
	assert.True(t, result)
}

func TestRecallUnknownStrategyErrors(t *testing.T) {
	e, _ := newTestEngine()
	_, err := e.Recall(context.Background(), "agent-1", "x", Strategy("bogus"))
	assert.Error(t, err)
}

func TestHybridRankDoesNotDivideByListCount(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	_, err := e.Remember(ctx, "agent-1", "the rocket launch is scheduled for tomorrow")
	require.NoError(t, err)

	o := core.ApplyRecallOptions(nil)
	o.Limit = 10
	allowed, err := e.authz.AccessibleIDs(ctx, "agent-1")
	require.NoError(t, err)
	allowedSet := make(map[core.ID]struct{}, len(allowed))
	for _, id := range allowed {
		allowedSet[id] = struct{}{}
	}

	_, scores, _, err := e.hybridRank(ctx, "rocket launch", o, allowedSet, time.Now())
	require.NoError(t, err)
	require.NotEmpty(t, scores)
	for _, s := range scores {
		// A memory appearing on all four ranked lists at rank 1 scores
		// 4/(k+1); dividing by list count would cap this at 1/(k+1).
		assert.Greater(t, s, 1.0/(defaultRRFK+1), "fusion must not renormalize by the number of ranked lists")
	}
}

func TestRecallHybridWeightsOverrideContribution(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	_, err := e.Remember(ctx, "agent-1", "the rocket launch is scheduled for tomorrow")
	require.NoError(t, err)

	hits, err := e.Recall(ctx, "agent-1", "rocket launch", StrategyHybrid,
		core.WithHybridWeights(map[string]float64{"semantic": 0, "lexical": 0, "recency": 0, "graph": 0}))
	require.NoError(t, err)
	for _, h := range hits {
		assert.Equal(t, 0.0, h.Score, "zeroing every list's weight must zero the fused score")
	}
}

func TestRecallScopesToBranch(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	_, err := e.Remember(ctx, "agent-1", "main branch note", core.WithThreadID("t1"))
	require.NoError(t, err)
	_, err = e.Remember(ctx, "agent-1", "feature branch note", core.WithThreadID("t1"), core.WithRememberBranch("feature"))
	require.NoError(t, err)

	mainHits, err := e.Recall(ctx, "agent-1", "", StrategyExact, core.WithRecallThreadID("t1"))
	require.NoError(t, err)
	require.Len(t, mainHits, 1)
	assert.Contains(t, mainHits[0].Content, "main branch")

	featureHits, err := e.Recall(ctx, "agent-1", "", StrategyExact, core.WithRecallThreadID("t1"), core.WithRecallBranch("feature"))
	require.NoError(t, err)
	require.Len(t, featureHits, 1)
	assert.Contains(t, featureHits[0].Content, "feature branch")
}

func TestRecallRespectsMinScore(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	_, err := e.Remember(ctx, "agent-1", "totally unrelated content about gardening")
	require.NoError(t, err)

	hits, err := e.Recall(ctx, "agent-1", "", StrategyExact, core.WithMinScore(2.0))
	require.NoError(t, err)
	assert.Empty(t, hits, "a min_score above any attainable rank score must exclude all hits")
}
