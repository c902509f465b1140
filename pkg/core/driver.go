// Package core provides the Mnemo query coordinator and memory data model.
package core

import (
	"context"
	"time"
)

// MemoryFilter narrows a ListMemories/Search call (spec.md §4.2, §6).
type MemoryFilter struct {
	AgentID        string
	OrgID          string
	ThreadID       string
	MemoryTypes    []MemoryType
	Tags           []string
	Since          *time.Time
	Until          *time.Time
	IDs            []ID
	ExcludeDeleted bool
}

// Driver is the storage contract every backend implements (spec.md §6).
//
// A Driver owns persistence for all seven entities in the data model plus
// the handful of derived queries (latest hash, accessible ids, permission
// checks) the coordinator needs without pulling whole tables into memory.
// Implementations must serialize concurrent writes per agent_id so that
// chain-append order matches arrival order (spec.md §5).
type Driver interface {
	// Memories
	InsertMemory(ctx context.Context, m *MemoryRecord) error
	GetMemory(ctx context.Context, id ID) (*MemoryRecord, error)
	UpdateMemory(ctx context.Context, m *MemoryRecord) error
	ListMemories(ctx context.Context, f MemoryFilter, limit, offset int) ([]*MemoryRecord, error)
	SearchMemoriesByVector(ctx context.Context, agentIDs []string, vector []float32, limit int) ([]*MemoryRecord, []float64, error)
	DeleteMemory(ctx context.Context, id ID, hard bool) error
	GetLatestMemoryHash(ctx context.Context, agentID string) ([32]byte, error)

	// Events
	InsertEvent(ctx context.Context, e *AgentEvent) error
	GetEvent(ctx context.Context, id ID) (*AgentEvent, error)
	ListEvents(ctx context.Context, agentID, threadID string, since ID, limit int) ([]*AgentEvent, error)
	ListChildEvents(ctx context.Context, parentID ID) ([]*AgentEvent, error)
	GetLatestEventHash(ctx context.Context, agentID string) ([32]byte, error)

	// Relations
	InsertRelation(ctx context.Context, r *Relation) error
	ListRelations(ctx context.Context, memoryID ID) ([]*Relation, error)

	// Access control
	InsertACLEntry(ctx context.Context, a *ACLEntry) error
	ListACLEntries(ctx context.Context, memoryID ID) ([]*ACLEntry, error)
	InsertDelegation(ctx context.Context, d *Delegation) error
	GetDelegation(ctx context.Context, id ID) (*Delegation, error)
	ListDelegationsFor(ctx context.Context, delegateID string) ([]*Delegation, error)
	RevokeDelegation(ctx context.Context, id ID) error
	ListAccessibleMemoryIDs(ctx context.Context, principalID string) ([]ID, error)

	// Checkpoints
	InsertCheckpoint(ctx context.Context, c *Checkpoint) error
	GetCheckpoint(ctx context.Context, id ID) (*Checkpoint, error)
	ListCheckpoints(ctx context.Context, threadID, branchName string) ([]*Checkpoint, error)
	LatestCheckpoint(ctx context.Context, threadID, branchName string) (*Checkpoint, error)

	// Agent profiles
	GetAgentProfile(ctx context.Context, agentID string) (*AgentProfile, error)
	UpsertAgentProfile(ctx context.Context, p *AgentProfile) error

	// Maintenance
	CleanupExpired(ctx context.Context, now time.Time) (int, error)

	Close() error
}
