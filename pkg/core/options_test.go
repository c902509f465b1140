package core_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mnemohq/mnemo/pkg/core"
)

func TestApplyRememberOptionsDefaults(t *testing.T) {
	o := core.ApplyRememberOptions(nil)

	assert.Equal(t, core.MemoryEpisodic, o.MemoryType)
	assert.Equal(t, core.ScopePrivate, o.Scope)
	assert.Equal(t, 0.5, o.Importance)
	assert.NotNil(t, o.Metadata)
}

func TestApplyRememberOptionsOverrides(t *testing.T) {
	o := core.ApplyRememberOptions([]core.RememberOption{
		core.WithOrgID("org-1"),
		core.WithThreadID("thread-1"),
		core.WithMemoryType(core.MemorySemantic),
		core.WithScope(core.ScopeShared),
		core.WithImportance(0.9),
		core.WithTags("a", "b"),
		core.WithTTL(time.Hour),
		core.WithDecayRate(0.02),
		core.WithSource("tool_call", "call-1"),
	})

	assert.Equal(t, "org-1", o.OrgID)
	assert.Equal(t, "thread-1", o.ThreadID)
	assert.Equal(t, core.MemorySemantic, o.MemoryType)
	assert.Equal(t, core.ScopeShared, o.Scope)
	assert.Equal(t, 0.9, o.Importance)
	assert.Equal(t, []string{"a", "b"}, o.Tags)
	assert.NotNil(t, o.TTL)
	assert.Equal(t, time.Hour, *o.TTL)
	assert.NotNil(t, o.DecayRate)
	assert.Equal(t, 0.02, *o.DecayRate)
	assert.Equal(t, "tool_call", o.SourceType)
	assert.Equal(t, "call-1", o.SourceID)
}

func TestApplyRecallOptionsDefaults(t *testing.T) {
	o := core.ApplyRecallOptions(nil)
	assert.Equal(t, 10, o.Limit)
}

func TestApplyRecallOptionsTemporalRange(t *testing.T) {
	since := time.Now().Add(-time.Hour)
	until := time.Now()
	o := core.ApplyRecallOptions([]core.RecallOption{core.WithTemporalRange(since, until)})

	assert.NotNil(t, o.Since)
	assert.NotNil(t, o.Until)
	assert.True(t, o.Since.Equal(since))
	assert.True(t, o.Until.Equal(until))
}

func TestApplyForgetOptionsDefaultsToSoft(t *testing.T) {
	o := core.ApplyForgetOptions(nil)
	assert.Equal(t, core.ForgetSoft, o.Strategy)
}

func TestApplyForgetOptionsHard(t *testing.T) {
	o := core.ApplyForgetOptions([]core.ForgetOption{
		core.WithForgetStrategy(core.ForgetHard),
		core.WithForgetReason("user requested erasure"),
	})
	assert.Equal(t, core.ForgetHard, o.Strategy)
	assert.Equal(t, "user requested erasure", o.Reason)
}

func TestApplyDelegateOptionsDefaults(t *testing.T) {
	o := core.ApplyDelegateOptions(nil)
	assert.Equal(t, core.DelegationScopeAll, o.Scope.Kind)
	assert.Equal(t, 1, o.MaxDepth)
}

func TestApplyCheckpointOptionsDefaultsToMainBranch(t *testing.T) {
	o := core.ApplyCheckpointOptions(nil)
	assert.Equal(t, core.DefaultBranch, o.BranchName)
}
