package lifecycle

import (
	"strings"
	"time"

	"github.com/mnemohq/mnemo/pkg/core"
)

// injectionPatterns is the fixed pattern-scan list (spec.md §4.7 requires
// >= 10 prompt-injection substrings); grounded on the teacher's
// pkg/intelligence/decision.go LLM-assisted decision shape, repurposed here
// as a closed arithmetic scorer with no LLM call involved.
var injectionPatterns = []string{
	"ignore previous instructions",
	"ignore all previous instructions",
	"disregard the above",
	"disregard previous",
	"system prompt",
	"you are now",
	"new instructions:",
	"do anything now",
	"jailbreak",
	"act as if",
	"pretend you are",
	"reveal your instructions",
	"bypass your",
	"override your",
}

// AnomalyConfig tunes scoring thresholds, each matching a factor weight in
// spec.md §4.7.
type AnomalyConfig struct {
	ImportanceDeviationWeight float64
	ImportanceDeviationLimit  float64
	LengthRatioWeight         float64
	LengthRatioHigh           float64
	LengthRatioLow            float64
	BurstWeight               float64
	BurstCount                int
	BurstWindow               time.Duration
	PatternWeight             float64
	QuarantineThreshold       float64
}

// DefaultAnomalyConfig matches spec.md §4.7's stated weights.
func DefaultAnomalyConfig() AnomalyConfig {
	return AnomalyConfig{
		ImportanceDeviationWeight: 0.3,
		ImportanceDeviationLimit:  0.4,
		LengthRatioWeight:         0.3,
		LengthRatioHigh:           5.0,
		LengthRatioLow:            0.1,
		BurstWeight:               0.4,
		BurstCount:                10,
		BurstWindow:               60 * time.Second,
		PatternWeight:             0.5,
		QuarantineThreshold:       0.5,
	}
}

// Score computes the anomaly score for a candidate memory against the
// agent's running profile, returning the cumulative score and whether it
// crosses the quarantine threshold (spec.md §4.7).
func Score(m *core.MemoryRecord, profile *core.AgentProfile, now time.Time, cfg AnomalyConfig) (score float64, quarantine bool) {
	if profile != nil && profile.AvgImportance > 0 {
		if deviation := abs(m.Importance - profile.AvgImportance); deviation > cfg.ImportanceDeviationLimit {
			score += cfg.ImportanceDeviationWeight
		}
	}

	if profile != nil && profile.AvgContentLength > 0 {
		ratio := float64(len(m.Content)) / profile.AvgContentLength
		if ratio > cfg.LengthRatioHigh || ratio < cfg.LengthRatioLow {
			score += cfg.LengthRatioWeight
		}
	}

	if profile != nil {
		count := 0
		cutoff := now.Add(-cfg.BurstWindow)
		for _, t := range profile.RecentWriteTimes {
			if t.After(cutoff) {
				count++
			}
		}
		if count >= cfg.BurstCount {
			score += cfg.BurstWeight
		}
	}

	if containsInjectionPattern(m.Content) {
		score += cfg.PatternWeight
	}

	return score, score >= cfg.QuarantineThreshold
}

func containsInjectionPattern(content string) bool {
	lower := strings.ToLower(content)
	for _, p := range injectionPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// UpdateProfile folds a newly written memory into the agent's running
// statistics (spec.md §3 AgentProfile, §4.1 step 8).
func UpdateProfile(profile *core.AgentProfile, m *core.MemoryRecord, now time.Time) *core.AgentProfile {
	if profile == nil {
		profile = &core.AgentProfile{AgentID: m.AgentID}
	}

	n := float64(profile.TotalMemories)
	profile.AvgImportance = (profile.AvgImportance*n + m.Importance) / (n + 1)
	profile.AvgContentLength = (profile.AvgContentLength*n + float64(len(m.Content))) / (n + 1)
	profile.TotalMemories++
	profile.LastWriteAt = now

	profile.RecentWriteTimes = append(profile.RecentWriteTimes, now)
	cutoff := now.Add(-10 * time.Minute)
	pruned := profile.RecentWriteTimes[:0]
	for _, t := range profile.RecentWriteTimes {
		if t.After(cutoff) {
			pruned = append(pruned, t)
		}
	}
	profile.RecentWriteTimes = pruned

	return profile
}
