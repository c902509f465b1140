// Package core provides the Mnemo query coordinator and memory data model.
package core

import "time"

// MemoryType is the cognitive category of a memory (spec.md §3).
type MemoryType string

const (
	MemoryWorking    MemoryType = "working"
	MemoryEpisodic   MemoryType = "episodic"
	MemorySemantic   MemoryType = "semantic"
	MemoryProcedural MemoryType = "procedural"
)

// DefaultDecayRate returns the per-type default decay rate used by the
// lifecycle engine (spec.md §4.7) when a memory carries no explicit
// decay_rate.
func (t MemoryType) DefaultDecayRate() float64 {
	switch t {
	case MemoryWorking:
		return 0.05
	case MemoryEpisodic:
		return 0.01
	case MemorySemantic:
		return 0.001
	case MemoryProcedural:
		return 0.002
	default:
		return 0.01
	}
}

// Scope is the visibility class of a memory (spec.md §3, glossary).
type Scope string

const (
	ScopePrivate Scope = "private"
	ScopeShared  Scope = "shared"
	ScopePublic  Scope = "public"
	ScopeGlobal  Scope = "global"
)

// ConsolidationState is a memory's position in the cognitive lifecycle.
type ConsolidationState string

const (
	StateRaw         ConsolidationState = "raw"
	StateActive      ConsolidationState = "active"
	StatePending     ConsolidationState = "pending"
	StateConsolidated ConsolidationState = "consolidated"
	StateArchived    ConsolidationState = "archived"
	StateForgotten   ConsolidationState = "forgotten"
)

// Permission is a point in the total-ordered permission hierarchy
// (spec.md §3: Read < Write < Delete < Share < Delegate < Admin).
type Permission int

const (
	PermissionNone Permission = iota
	PermissionRead
	PermissionWrite
	PermissionDelete
	PermissionShare
	PermissionDelegate
	PermissionAdmin
)

// Satisfies reports whether p is at least as strong as required.
func (p Permission) Satisfies(required Permission) bool {
	return p >= required
}

// String renders the permission's canonical lowercase name.
func (p Permission) String() string {
	switch p {
	case PermissionRead:
		return "read"
	case PermissionWrite:
		return "write"
	case PermissionDelete:
		return "delete"
	case PermissionShare:
		return "share"
	case PermissionDelegate:
		return "delegate"
	case PermissionAdmin:
		return "admin"
	default:
		return "none"
	}
}

// Provenance records where a memory came from.
type Provenance struct {
	CreatedBy  string `json:"created_by"`
	SourceType string `json:"source_type,omitempty"`
	SourceID   string `json:"source_id,omitempty"`
}

// MemoryRecord is a single memorized item (spec.md §3).
type MemoryRecord struct {
	ID       ID     `json:"id"`
	AgentID  string `json:"agent_id"`
	OrgID    string `json:"org_id,omitempty"`
	ThreadID string `json:"thread_id,omitempty"`

	// BranchName scopes this memory to one line of a thread's checkpoint
	// history (spec.md §4.5, §4.8, §8 scenario S6: recalling on branch B
	// must never surface writes made only on a sibling branch). Writes
	// made before any checkpoint exists carry DefaultBranch.
	BranchName string `json:"branch_name"`

	Content   string    `json:"content"`
	Embedding []float32 `json:"embedding,omitempty"`

	MemoryType MemoryType `json:"memory_type"`
	Scope      Scope      `json:"scope"`
	Importance float64    `json:"importance"`

	Tags     map[string]struct{}    `json:"-"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`
	AccessCount    int64      `json:"access_count"`

	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	DecayRate *float64   `json:"decay_rate,omitempty"`

	ConsolidationState ConsolidationState `json:"consolidation_state"`

	Provenance Provenance `json:"provenance"`

	Version       int64 `json:"version"`
	PrevVersionID ID    `json:"prev_version_id,omitempty"`

	ContentHash [32]byte `json:"content_hash"`
	PrevHash    [32]byte `json:"prev_hash"`

	Quarantined      bool   `json:"quarantined"`
	QuarantineReason string `json:"quarantine_reason,omitempty"`

	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// TagSlice returns the memory's tags as a []string, for callers that need
// a deterministic value rather than the set.
func (m *MemoryRecord) TagSlice() []string {
	out := make([]string, 0, len(m.Tags))
	for t := range m.Tags {
		out = append(out, t)
	}
	return out
}

// HasTag reports whether the memory carries the given tag.
func (m *MemoryRecord) HasTag(tag string) bool {
	_, ok := m.Tags[tag]
	return ok
}

// Excluded reports whether this memory must be excluded from every
// retrieval path regardless of strategy (spec.md §3, §4.2, §8 property 3).
func (m *MemoryRecord) Excluded(now time.Time) bool {
	if m.ConsolidationState == StateForgotten {
		return true
	}
	if m.Quarantined {
		return true
	}
	if m.DeletedAt != nil {
		return true
	}
	if m.ExpiresAt != nil && !m.ExpiresAt.After(now) {
		return true
	}
	return false
}

// EventType enumerates AgentEvent kinds (spec.md §3).
type EventType string

const (
	EventUserMsg         EventType = "user_msg"
	EventAssistantMsg    EventType = "assistant_msg"
	EventToolCall        EventType = "tool_call"
	EventToolResult      EventType = "tool_result"
	EventRetrievalQuery  EventType = "retrieval_query"
	EventRetrievalResult EventType = "retrieval_result"
	EventMemoryWrite     EventType = "memory_write"
	EventMemoryRead      EventType = "memory_read"
	EventMemoryDelete    EventType = "memory_delete"
	EventMemoryShare     EventType = "memory_share"
	EventCheckpoint      EventType = "checkpoint"
	EventBranch          EventType = "branch"
	EventMerge           EventType = "merge"
	EventError           EventType = "error"
	EventDecision        EventType = "decision"
)

// Telemetry carries optional correlation fields for an AgentEvent.
type Telemetry struct {
	TraceID      string  `json:"trace_id,omitempty"`
	SpanID       string  `json:"span_id,omitempty"`
	Model        string  `json:"model,omitempty"`
	InputTokens  int64   `json:"input_tokens,omitempty"`
	OutputTokens int64   `json:"output_tokens,omitempty"`
	LatencyMS    int64   `json:"latency_ms,omitempty"`
	Cost         float64 `json:"cost,omitempty"`
}

// AgentEvent is an immutable action record forming the per-agent event
// DAG and hash chain (spec.md §3).
type AgentEvent struct {
	ID            ID        `json:"id"`
	AgentID       string    `json:"agent_id"`
	ThreadID      string    `json:"thread_id,omitempty"`
	RunID         string    `json:"run_id,omitempty"`
	ParentEventID ID        `json:"parent_event_id,omitempty"`
	EventType     EventType `json:"event_type"`

	Payload   map[string]interface{} `json:"payload,omitempty"`
	Telemetry Telemetry              `json:"telemetry,omitempty"`

	Timestamp    time.Time `json:"timestamp"`
	LogicalClock int64     `json:"logical_clock"`

	ContentHash [32]byte `json:"content_hash"`
	PrevHash    [32]byte `json:"prev_hash"`
}

// Relation is a typed directed edge between two memories (spec.md §3).
type Relation struct {
	ID           ID                     `json:"id"`
	SourceID     ID                     `json:"source_id"`
	TargetID     ID                     `json:"target_id"`
	RelationType string                 `json:"relation_type"`
	Weight       float64                `json:"weight"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}

// PrincipalType enumerates who an ACLEntry or Delegation names as a principal.
type PrincipalType string

const (
	PrincipalAgent  PrincipalType = "agent"
	PrincipalUser   PrincipalType = "user"
	PrincipalOrg    PrincipalType = "org"
	PrincipalRole   PrincipalType = "role"
	PrincipalPublic PrincipalType = "public"
)

// ACLEntry is one explicit grant of a permission on one memory (spec.md §3).
type ACLEntry struct {
	ID            ID            `json:"id"`
	MemoryID      ID            `json:"memory_id"`
	PrincipalType PrincipalType `json:"principal_type"`
	PrincipalID   string        `json:"principal_id"`
	Permission    Permission    `json:"permission"`
	GrantedBy     string        `json:"granted_by"`
	CreatedAt     time.Time     `json:"created_at"`
	ExpiresAt     *time.Time    `json:"expires_at,omitempty"`
}

// Expired reports whether the ACL entry is no longer valid at instant now.
func (a *ACLEntry) Expired(now time.Time) bool {
	return a.ExpiresAt != nil && !a.ExpiresAt.After(now)
}

// DelegationScopeKind discriminates a Delegation's scope (spec.md §3).
type DelegationScopeKind string

const (
	DelegationScopeAll      DelegationScopeKind = "all"
	DelegationScopeByTag    DelegationScopeKind = "by_tag"
	DelegationScopeByMemory DelegationScopeKind = "by_memory_id"
)

// DelegationScope restricts which memories a Delegation covers.
type DelegationScope struct {
	Kind      DelegationScopeKind `json:"kind"`
	Tags      map[string]struct{} `json:"-"`
	MemoryIDs map[ID]struct{}     `json:"-"`
}

// Contains reports whether scope covers the given memory.
func (s DelegationScope) Contains(m *MemoryRecord) bool {
	switch s.Kind {
	case DelegationScopeAll:
		return true
	case DelegationScopeByTag:
		for tag := range s.Tags {
			if m.HasTag(tag) {
				return true
			}
		}
		return false
	case DelegationScopeByMemory:
		_, ok := s.MemoryIDs[m.ID]
		return ok
	default:
		return false
	}
}

// Delegation is a transitive grant of a permission over a scope, bounded
// by depth and time (spec.md §3).
type Delegation struct {
	ID                  ID              `json:"id"`
	DelegatorID         string          `json:"delegator_id"`
	DelegateID          string          `json:"delegate_id"`
	Permission          Permission      `json:"permission"`
	Scope               DelegationScope `json:"scope"`
	MaxDepth            int             `json:"max_depth"`
	CurrentDepth        int             `json:"current_depth"`
	ParentDelegationID  ID              `json:"parent_delegation_id,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	ExpiresAt           *time.Time      `json:"expires_at,omitempty"`
	RevokedAt           *time.Time      `json:"revoked_at,omitempty"`
}

// Active reports whether the delegation is usable at instant now: not
// expired, not revoked, and within its depth budget.
func (d *Delegation) Active(now time.Time) bool {
	if d.RevokedAt != nil {
		return false
	}
	if d.ExpiresAt != nil && !d.ExpiresAt.After(now) {
		return false
	}
	return d.CurrentDepth <= d.MaxDepth
}

// Checkpoint is a named, immutable snapshot of thread state (spec.md §3).
type Checkpoint struct {
	ID            ID                     `json:"id"`
	ThreadID      string                 `json:"thread_id"`
	AgentID       string                 `json:"agent_id"`
	ParentID      ID                     `json:"parent_id,omitempty"`
	BranchName    string                 `json:"branch_name"`
	StateSnapshot map[string]interface{} `json:"state_snapshot"`
	StateDiff     map[string]interface{} `json:"state_diff,omitempty"`
	MemoryRefs    map[ID]struct{}        `json:"-"`
	EventCursor   ID                     `json:"event_cursor"`
	Label         string                 `json:"label,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
}

// DefaultBranch is the branch name used when the caller supplies none.
const DefaultBranch = "main"

// AgentProfile carries running write statistics used for anomaly scoring
// (spec.md §3, §4.7).
type AgentProfile struct {
	AgentID          string      `json:"agent_id"`
	AvgImportance    float64     `json:"avg_importance"`
	AvgContentLength float64     `json:"avg_content_length"`
	TotalMemories    int64       `json:"total_memories"`
	LastWriteAt      time.Time   `json:"last_write_at"`
	RecentWriteTimes []time.Time `json:"-"`
}

// Status is the closed set of status strings a coordinator operation may
// return (spec.md §6, wire-visible contract).
type Status string

const (
	StatusRemembered         Status = "remembered"
	StatusRecalled           Status = "recalled"
	StatusForgotten          Status = "forgotten"
	StatusShared             Status = "shared"
	StatusCheckpointed       Status = "checkpointed"
	StatusBranched           Status = "branched"
	StatusMerged             Status = "merged"
	StatusReplayed           Status = "replayed"
	StatusVerified           Status = "verified"
	StatusIntegrityViolation Status = "integrity_violation"
	StatusDelegated          Status = "delegated"
)
