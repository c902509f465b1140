package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/mnemohq/mnemo/pkg/core"
	"github.com/mnemohq/mnemo/pkg/storage"
)

var (
	errVersionMismatch = errors.New("memory version mismatch: concurrent update")
	errAlreadyAbsent   = errors.New("memory already absent")
)

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

const memoryColumns = `id, agent_id, org_id, thread_id, content, embedding, memory_type, scope, importance,
	tags, metadata, created_at, updated_at, last_accessed_at, access_count, expires_at, decay_rate,
	consolidation_state, created_by, source_type, source_id, version, prev_version_id, content_hash,
	prev_hash, quarantined, quarantine_reason, deleted_at`

const eventColumns = `id, agent_id, thread_id, run_id, parent_event_id, event_type, payload, telemetry,
	timestamp, logical_clock, content_hash, prev_hash`

const delegationColumns = `id, delegator_id, delegate_id, permission, scope_kind, scope_tags, scope_memory_ids,
	max_depth, current_depth, parent_delegation_id, created_at, expires_at, revoked_at`

const checkpointColumns = `id, thread_id, agent_id, parent_id, branch_name, state_snapshot, state_diff,
	memory_refs, event_cursor, label, created_at`

func scanMemory(row rowScanner) (*core.MemoryRecord, error) {
	var (
		idStr, agentID, orgID, threadID, content, embeddingRaw                 string
		memoryType, scope, tagsRaw, metadataRaw, consolidationState            string
		createdBy, sourceType, sourceID, prevVersionRaw, quarantineReason      string
		importance                                                            float64
		createdAt, updatedAt                                                  time.Time
		lastAccessed, expiresAt, deletedAt                                    sql.NullTime
		accessCount                                                           int64
		decayRate                                                             sql.NullFloat64
		version                                                               int64
		contentHash, prevHash                                                 []byte
		quarantined                                                           bool
	)

	if err := row.Scan(&idStr, &agentID, &orgID, &threadID, &content, &embeddingRaw, &memoryType, &scope, &importance,
		&tagsRaw, &metadataRaw, &createdAt, &updatedAt, &lastAccessed, &accessCount, &expiresAt, &decayRate,
		&consolidationState, &createdBy, &sourceType, &sourceID, &version, &prevVersionRaw, &contentHash,
		&prevHash, &quarantined, &quarantineReason, &deletedAt); err != nil {
		return nil, err
	}

	m := &core.MemoryRecord{
		AgentID:            agentID,
		OrgID:              orgID,
		ThreadID:           threadID,
		Content:            content,
		MemoryType:         core.MemoryType(memoryType),
		Scope:              core.Scope(scope),
		Importance:         importance,
		CreatedAt:          createdAt,
		UpdatedAt:          updatedAt,
		AccessCount:        accessCount,
		ConsolidationState: core.ConsolidationState(consolidationState),
		Provenance: core.Provenance{
			CreatedBy:  createdBy,
			SourceType: sourceType,
			SourceID:   sourceID,
		},
		Version:     version,
		Quarantined: quarantined,
		QuarantineReason: quarantineReason,
	}

	var err error
	m.ID, err = core.ParseID(idStr)
	if err != nil {
		return nil, err
	}
	if prevVersionRaw != "" {
		if m.PrevVersionID, err = core.ParseID(prevVersionRaw); err != nil {
			return nil, err
		}
	}
	if m.Embedding, err = storage.DecodeEmbedding(embeddingRaw); err != nil {
		return nil, err
	}
	if m.Tags, err = storage.DecodeTags(tagsRaw); err != nil {
		return nil, err
	}
	if m.Metadata, err = storage.DecodeMetadata(metadataRaw); err != nil {
		return nil, err
	}
	if lastAccessed.Valid {
		m.LastAccessedAt = &lastAccessed.Time
	}
	if expiresAt.Valid {
		m.ExpiresAt = &expiresAt.Time
	}
	if deletedAt.Valid {
		m.DeletedAt = &deletedAt.Time
	}
	if decayRate.Valid {
		v := decayRate.Float64
		m.DecayRate = &v
	}
	copy(m.ContentHash[:], contentHash)
	copy(m.PrevHash[:], prevHash)

	return m, nil
}

func scanEvent(row rowScanner) (*core.AgentEvent, error) {
	var (
		idStr, agentID, threadID, runID, parentRaw, eventType string
		payloadRaw, telemetryRaw                               string
		timestamp                                              time.Time
		logicalClock                                           int64
		contentHash, prevHash                                  []byte
	)

	if err := row.Scan(&idStr, &agentID, &threadID, &runID, &parentRaw, &eventType, &payloadRaw, &telemetryRaw,
		&timestamp, &logicalClock, &contentHash, &prevHash); err != nil {
		return nil, err
	}

	e := &core.AgentEvent{
		AgentID:      agentID,
		ThreadID:     threadID,
		RunID:        runID,
		EventType:    core.EventType(eventType),
		Timestamp:    timestamp,
		LogicalClock: logicalClock,
	}

	var err error
	e.ID, err = core.ParseID(idStr)
	if err != nil {
		return nil, err
	}
	if parentRaw != "" {
		if e.ParentEventID, err = core.ParseID(parentRaw); err != nil {
			return nil, err
		}
	}
	if e.Payload, err = storage.DecodeMetadata(payloadRaw); err != nil {
		return nil, err
	}
	telemetryMap, err := storage.DecodeMetadata(telemetryRaw)
	if err != nil {
		return nil, err
	}
	e.Telemetry = mapToTelemetry(telemetryMap)
	copy(e.ContentHash[:], contentHash)
	copy(e.PrevHash[:], prevHash)

	return e, nil
}

func scanDelegation(row rowScanner) (*core.Delegation, error) {
	var (
		idStr, delegatorID, delegateID, scopeKind, tagsRaw, memIDsRaw, parentRaw string
		permission                                                              int
		maxDepth, currentDepth                                                  int
		createdAt                                                               time.Time
		expiresAt, revokedAt                                                    sql.NullTime
	)

	if err := row.Scan(&idStr, &delegatorID, &delegateID, &permission, &scopeKind, &tagsRaw, &memIDsRaw,
		&maxDepth, &currentDepth, &parentRaw, &createdAt, &expiresAt, &revokedAt); err != nil {
		return nil, err
	}

	d := &core.Delegation{
		DelegatorID:  delegatorID,
		DelegateID:   delegateID,
		Permission:   core.Permission(permission),
		MaxDepth:     maxDepth,
		CurrentDepth: currentDepth,
		CreatedAt:    createdAt,
		Scope:        core.DelegationScope{Kind: core.DelegationScopeKind(scopeKind)},
	}

	var err error
	d.ID, err = core.ParseID(idStr)
	if err != nil {
		return nil, err
	}
	if parentRaw != "" {
		if d.ParentDelegationID, err = core.ParseID(parentRaw); err != nil {
			return nil, err
		}
	}
	if d.Scope.Tags, err = storage.DecodeTags(tagsRaw); err != nil {
		return nil, err
	}
	if d.Scope.MemoryIDs, err = decodeIDSet(memIDsRaw); err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		d.ExpiresAt = &expiresAt.Time
	}
	if revokedAt.Valid {
		d.RevokedAt = &revokedAt.Time
	}

	return d, nil
}

func scanCheckpoint(row rowScanner) (*core.Checkpoint, error) {
	var (
		idStr, threadID, agentID, parentRaw, branchName string
		snapshotRaw, diffRaw, refsRaw, eventCursorRaw    string
		label                                            string
		createdAt                                        time.Time
	)

	if err := row.Scan(&idStr, &threadID, &agentID, &parentRaw, &branchName, &snapshotRaw, &diffRaw,
		&refsRaw, &eventCursorRaw, &label, &createdAt); err != nil {
		return nil, err
	}

	cp := &core.Checkpoint{
		ThreadID:   threadID,
		AgentID:    agentID,
		BranchName: branchName,
		Label:      label,
		CreatedAt:  createdAt,
	}

	var err error
	cp.ID, err = core.ParseID(idStr)
	if err != nil {
		return nil, err
	}
	if parentRaw != "" {
		if cp.ParentID, err = core.ParseID(parentRaw); err != nil {
			return nil, err
		}
	}
	if eventCursorRaw != "" {
		if cp.EventCursor, err = core.ParseID(eventCursorRaw); err != nil {
			return nil, err
		}
	}
	if cp.StateSnapshot, err = storage.DecodeMetadata(snapshotRaw); err != nil {
		return nil, err
	}
	if cp.StateDiff, err = storage.DecodeMetadata(diffRaw); err != nil {
		return nil, err
	}
	if cp.MemoryRefs, err = decodeIDSet(refsRaw); err != nil {
		return nil, err
	}

	return cp, nil
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func nullFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}

func nullID(id core.ID) interface{} {
	if id.IsZero() {
		return nil
	}
	return id.String()
}

func anyTagMatches(m *core.MemoryRecord, tags []string) bool {
	for _, t := range tags {
		if m.HasTag(t) {
			return true
		}
	}
	return false
}

func placeholders(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			out += ","
		}
		out += "?"
	}
	return out
}

func encodeIDSet(ids map[core.ID]struct{}) (string, error) {
	list := make([]string, 0, len(ids))
	for id := range ids {
		list = append(list, id.String())
	}
	data, err := json.Marshal(list)
	if err != nil {
		return "", core.NewEngineError("encodeIDSet", core.KindStorage, err)
	}
	return string(data), nil
}

func decodeIDSet(raw string) (map[core.ID]struct{}, error) {
	out := make(map[core.ID]struct{})
	if raw == "" {
		return out, nil
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, core.NewEngineError("decodeIDSet", core.KindStorage, err)
	}
	for _, s := range list {
		id, err := core.ParseID(s)
		if err != nil {
			continue
		}
		out[id] = struct{}{}
	}
	return out, nil
}

func encodeTimes(times []time.Time) (string, error) {
	data, err := json.Marshal(times)
	if err != nil {
		return "", core.NewEngineError("encodeTimes", core.KindStorage, err)
	}
	return string(data), nil
}

func decodeTimes(raw string) []time.Time {
	if raw == "" {
		return nil
	}
	var out []time.Time
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}

func telemetryToMap(t core.Telemetry) map[string]interface{} {
	return map[string]interface{}{
		"trace_id":      t.TraceID,
		"span_id":       t.SpanID,
		"model":         t.Model,
		"input_tokens":  t.InputTokens,
		"output_tokens": t.OutputTokens,
		"latency_ms":    t.LatencyMS,
		"cost":          t.Cost,
	}
}

func mapToTelemetry(m map[string]interface{}) core.Telemetry {
	var t core.Telemetry
	if v, ok := m["trace_id"].(string); ok {
		t.TraceID = v
	}
	if v, ok := m["span_id"].(string); ok {
		t.SpanID = v
	}
	if v, ok := m["model"].(string); ok {
		t.Model = v
	}
	if v, ok := m["input_tokens"].(float64); ok {
		t.InputTokens = int64(v)
	}
	if v, ok := m["output_tokens"].(float64); ok {
		t.OutputTokens = int64(v)
	}
	if v, ok := m["latency_ms"].(float64); ok {
		t.LatencyMS = int64(v)
	}
	if v, ok := m["cost"].(float64); ok {
		t.Cost = v
	}
	return t
}

// cosineSimilarity computes cosine similarity between two equal-length
// vectors, grounded on the teacher's pkg/storage/sqlite cosineSimilarity.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
