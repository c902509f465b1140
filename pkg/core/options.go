// Package core provides the Mnemo query coordinator and memory data model.
package core

import "time"

// RememberOption configures a Remember call.
type RememberOption func(*RememberOptions)

// RememberOptions controls how a new memory is written (spec.md §4.1).
type RememberOptions struct {
	OrgID      string
	ThreadID   string
	BranchName string
	MemoryType MemoryType
	Scope      Scope
	Importance float64
	Tags       []string
	Metadata   map[string]interface{}
	TTL        *time.Duration
	DecayRate  *float64
	SourceType string
	SourceID   string
}

func ApplyRememberOptions(opts []RememberOption) *RememberOptions {
	o := &RememberOptions{
		MemoryType: MemoryEpisodic,
		Scope:      ScopePrivate,
		Importance: 0.5,
		BranchName: DefaultBranch,
		Metadata:   make(map[string]interface{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func WithOrgID(orgID string) RememberOption {
	return func(o *RememberOptions) { o.OrgID = orgID }
}

func WithThreadID(threadID string) RememberOption {
	return func(o *RememberOptions) { o.ThreadID = threadID }
}

// WithRememberBranch tags the memory as belonging to a branch (spec.md
// §4.5, §4.8) other than DefaultBranch; this is how a write made after
// Branch is kept out of recall on sibling branches.
func WithRememberBranch(branchName string) RememberOption {
	return func(o *RememberOptions) { o.BranchName = branchName }
}

func WithMemoryType(t MemoryType) RememberOption {
	return func(o *RememberOptions) { o.MemoryType = t }
}

func WithScope(s Scope) RememberOption {
	return func(o *RememberOptions) { o.Scope = s }
}

func WithImportance(v float64) RememberOption {
	return func(o *RememberOptions) { o.Importance = v }
}

func WithTags(tags ...string) RememberOption {
	return func(o *RememberOptions) { o.Tags = tags }
}

func WithMetadata(md map[string]interface{}) RememberOption {
	return func(o *RememberOptions) { o.Metadata = md }
}

func WithTTL(d time.Duration) RememberOption {
	return func(o *RememberOptions) { o.TTL = &d }
}

func WithDecayRate(rate float64) RememberOption {
	return func(o *RememberOptions) { o.DecayRate = &rate }
}

func WithSource(sourceType, sourceID string) RememberOption {
	return func(o *RememberOptions) { o.SourceType = sourceType; o.SourceID = sourceID }
}

// RecallOption configures a Recall call.
type RecallOption func(*RecallOptions)

// RecallOptions controls hybrid retrieval (spec.md §4.2).
type RecallOptions struct {
	OrgID          string
	ThreadID       string
	MemoryTypes    []MemoryType
	Tags           []string
	Since          *time.Time
	Until          *time.Time
	Limit          int
	MinScore       float64
	IncludeDecayed bool
	OnBehalfOf     string
	BranchName     string

	// HybridWeights holds the per-list weight the hybrid strategy's RRF
	// fusion applies to each of its four ranked lists: "semantic",
	// "lexical", "recency", "graph" (spec.md §4.2's "optional hybrid
	// weights"). A list missing from the map contributes with weight 1,
	// so the zero value (nil map) reproduces the spec's default unweighted
	// fusion rather than silently zeroing every list out.
	HybridWeights map[string]float64

	// RRFK is the Reciprocal Rank Fusion rank-offset constant k in
	// score(m) = sum of w_list / (k + rank_list(m)). Zero means "use the
	// engine's default" (spec.md §4.2, §8 property/scenario S5).
	RRFK float64
}

func ApplyRecallOptions(opts []RecallOption) *RecallOptions {
	o := &RecallOptions{Limit: 10}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func WithRecallOrgID(orgID string) RecallOption {
	return func(o *RecallOptions) { o.OrgID = orgID }
}

func WithRecallThreadID(threadID string) RecallOption {
	return func(o *RecallOptions) { o.ThreadID = threadID }
}

func WithMemoryTypes(types ...MemoryType) RecallOption {
	return func(o *RecallOptions) { o.MemoryTypes = types }
}

func WithRecallTags(tags ...string) RecallOption {
	return func(o *RecallOptions) { o.Tags = tags }
}

func WithTemporalRange(since, until time.Time) RecallOption {
	return func(o *RecallOptions) { o.Since = &since; o.Until = &until }
}

func WithRecallLimit(limit int) RecallOption {
	return func(o *RecallOptions) { o.Limit = limit }
}

func WithMinScore(score float64) RecallOption {
	return func(o *RecallOptions) { o.MinScore = score }
}

func WithOnBehalfOf(principalID string) RecallOption {
	return func(o *RecallOptions) { o.OnBehalfOf = principalID }
}

func WithRecallBranch(branchName string) RecallOption {
	return func(o *RecallOptions) { o.BranchName = branchName }
}

// WithHybridWeights overrides the per-list weight the hybrid strategy's RRF
// fusion applies. Keys are "semantic", "lexical", "recency", "graph"; a list
// not present in weights keeps weight 1.
func WithHybridWeights(weights map[string]float64) RecallOption {
	return func(o *RecallOptions) { o.HybridWeights = weights }
}

// WithRRFK overrides the Reciprocal Rank Fusion rank-offset constant k.
func WithRRFK(k float64) RecallOption {
	return func(o *RecallOptions) { o.RRFK = k }
}

// ForgetOption configures a Forget call.
type ForgetOption func(*ForgetOptions)

// ForgetStrategy is how Forget disposes of a memory (spec.md §4.3).
type ForgetStrategy string

const (
	ForgetSoft        ForgetStrategy = "soft"
	ForgetHard        ForgetStrategy = "hard"
	ForgetArchive     ForgetStrategy = "archive"
	ForgetDecay       ForgetStrategy = "decay"
	ForgetConsolidate ForgetStrategy = "consolidate"
)

// ForgetOptions controls a Forget call.
type ForgetOptions struct {
	Strategy ForgetStrategy
	Reason   string
}

func ApplyForgetOptions(opts []ForgetOption) *ForgetOptions {
	o := &ForgetOptions{Strategy: ForgetSoft}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func WithForgetStrategy(s ForgetStrategy) ForgetOption {
	return func(o *ForgetOptions) { o.Strategy = s }
}

func WithForgetReason(reason string) ForgetOption {
	return func(o *ForgetOptions) { o.Reason = reason }
}

// ShareOption configures a Share call.
type ShareOption func(*ShareOptions)

// ShareOptions controls an explicit ACL grant (spec.md §4.6).
type ShareOptions struct {
	ExpiresAt *time.Time
}

func ApplyShareOptions(opts []ShareOption) *ShareOptions {
	o := &ShareOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func WithShareExpiry(t time.Time) ShareOption {
	return func(o *ShareOptions) { o.ExpiresAt = &t }
}

// DelegateOption configures a Delegate call.
type DelegateOption func(*DelegateOptions)

// DelegateOptions controls a transitive delegation grant (spec.md §4.6).
type DelegateOptions struct {
	Scope     DelegationScope
	MaxDepth  int
	ExpiresAt *time.Time
}

func ApplyDelegateOptions(opts []DelegateOption) *DelegateOptions {
	o := &DelegateOptions{
		Scope:    DelegationScope{Kind: DelegationScopeAll},
		MaxDepth: 1,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func WithDelegationScope(scope DelegationScope) DelegateOption {
	return func(o *DelegateOptions) { o.Scope = scope }
}

func WithDelegationMaxDepth(depth int) DelegateOption {
	return func(o *DelegateOptions) { o.MaxDepth = depth }
}

func WithDelegationExpiry(t time.Time) DelegateOption {
	return func(o *DelegateOptions) { o.ExpiresAt = &t }
}

// CheckpointOption configures a Checkpoint call.
type CheckpointOption func(*CheckpointOptions)

// CheckpointOptions controls a state snapshot (spec.md §4.8).
type CheckpointOptions struct {
	BranchName string
	Label      string
}

func ApplyCheckpointOptions(opts []CheckpointOption) *CheckpointOptions {
	o := &CheckpointOptions{BranchName: DefaultBranch}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func WithBranchName(name string) CheckpointOption {
	return func(o *CheckpointOptions) { o.BranchName = name }
}

func WithCheckpointLabel(label string) CheckpointOption {
	return func(o *CheckpointOptions) { o.Label = label }
}

// ReplayOption configures a Replay call.
type ReplayOption func(*ReplayOptions)

// ReplayOptions controls event-log replay (spec.md §4.8).
type ReplayOptions struct {
	FromCheckpointID ID
	ToEventID        ID
}

func ApplyReplayOptions(opts []ReplayOption) *ReplayOptions {
	o := &ReplayOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func WithReplayFrom(checkpointID ID) ReplayOption {
	return func(o *ReplayOptions) { o.FromCheckpointID = checkpointID }
}

func WithReplayTo(eventID ID) ReplayOption {
	return func(o *ReplayOptions) { o.ToEventID = eventID }
}
