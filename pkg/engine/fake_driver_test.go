package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mnemohq/mnemo/pkg/core"
)

// memoryDriver is a minimal in-memory core.Driver used to exercise Engine's
// operation logic without a real sqlite/postgres backend. It implements
// enough of the per-agent chain and access-control semantics for the engine
// package's own tests; it is not a general-purpose fake for other packages.
type memoryDriver struct {
	mu sync.Mutex

	memories    map[core.ID]*core.MemoryRecord
	events      map[core.ID]*core.AgentEvent
	relations   []*core.Relation
	acl         []*core.ACLEntry
	delegations map[core.ID]*core.Delegation
	checkpoints map[core.ID]*core.Checkpoint
	profiles    map[string]*core.AgentProfile
}

func newMemoryDriver() *memoryDriver {
	return &memoryDriver{
		memories:    make(map[core.ID]*core.MemoryRecord),
		events:      make(map[core.ID]*core.AgentEvent),
		delegations: make(map[core.ID]*core.Delegation),
		checkpoints: make(map[core.ID]*core.Checkpoint),
		profiles:    make(map[string]*core.AgentProfile),
	}
}

func (d *memoryDriver) InsertMemory(ctx context.Context, m *core.MemoryRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := *m
	d.memories[m.ID] = &cp
	return nil
}

func (d *memoryDriver) GetMemory(ctx context.Context, id core.ID) (*core.MemoryRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.memories[id]
	if !ok {
		return nil, core.NewEngineError("GetMemory", core.KindNotFound, errFakeNotFound)
	}
	cp := *m
	return &cp, nil
}

func (d *memoryDriver) UpdateMemory(ctx context.Context, m *core.MemoryRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.memories[m.ID]; !ok {
		return core.NewEngineError("UpdateMemory", core.KindNotFound, errFakeNotFound)
	}
	cp := *m
	d.memories[m.ID] = &cp
	return nil
}

func (d *memoryDriver) ListMemories(ctx context.Context, f core.MemoryFilter, limit, offset int) ([]*core.MemoryRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []*core.MemoryRecord
	for _, m := range d.memories {
		if f.AgentID != "" && m.AgentID != f.AgentID {
			continue
		}
		if f.ThreadID != "" && m.ThreadID != f.ThreadID {
			continue
		}
		if f.OrgID != "" && m.OrgID != f.OrgID {
			continue
		}
		if f.ExcludeDeleted && m.DeletedAt != nil {
			continue
		}
		if len(f.MemoryTypes) > 0 && !containsType(f.MemoryTypes, m.MemoryType) {
			continue
		}
		if len(f.Tags) > 0 && !anyTagMatch(m, f.Tags) {
			continue
		}
		if f.Since != nil && m.CreatedAt.Before(*f.Since) {
			continue
		}
		if f.Until != nil && m.CreatedAt.After(*f.Until) {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Compare(out[j].ID) < 0 })

	if offset > 0 {
		if offset >= len(out) {
			return nil, nil
		}
		out = out[offset:]
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (d *memoryDriver) SearchMemoriesByVector(ctx context.Context, agentIDs []string, vector []float32, limit int) ([]*core.MemoryRecord, []float64, error) {
	return nil, nil, nil
}

func (d *memoryDriver) DeleteMemory(ctx context.Context, id core.ID, hard bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.memories[id]
	if !ok {
		return core.NewEngineError("DeleteMemory", core.KindNotFound, errFakeNotFound)
	}
	if hard {
		delete(d.memories, id)
		return nil
	}
	now := time.Now()
	m.DeletedAt = &now
	return nil
}

func (d *memoryDriver) GetLatestMemoryHash(ctx context.Context, agentID string) ([32]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var latest *core.MemoryRecord
	for _, m := range d.memories {
		if m.AgentID != agentID {
			continue
		}
		if latest == nil || m.ID.Compare(latest.ID) > 0 {
			latest = m
		}
	}
	if latest == nil {
		return [32]byte{}, nil
	}
	return latest.ContentHash, nil
}

func (d *memoryDriver) InsertEvent(ctx context.Context, e *core.AgentEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := *e
	d.events[e.ID] = &cp
	return nil
}

func (d *memoryDriver) GetEvent(ctx context.Context, id core.ID) (*core.AgentEvent, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.events[id]
	if !ok {
		return nil, core.NewEngineError("GetEvent", core.KindNotFound, errFakeNotFound)
	}
	cp := *e
	return &cp, nil
}

func (d *memoryDriver) ListEvents(ctx context.Context, agentID, threadID string, since core.ID, limit int) ([]*core.AgentEvent, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*core.AgentEvent
	for _, e := range d.events {
		if e.AgentID != agentID {
			continue
		}
		if threadID != "" && e.ThreadID != threadID {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Compare(out[j].ID) < 0 })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (d *memoryDriver) ListChildEvents(ctx context.Context, parentID core.ID) ([]*core.AgentEvent, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*core.AgentEvent
	for _, e := range d.events {
		if e.ParentEventID == parentID {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Compare(out[j].ID) < 0 })
	return out, nil
}

func (d *memoryDriver) GetLatestEventHash(ctx context.Context, agentID string) ([32]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var latest *core.AgentEvent
	for _, e := range d.events {
		if e.AgentID != agentID {
			continue
		}
		if latest == nil || e.ID.Compare(latest.ID) > 0 {
			latest = e
		}
	}
	if latest == nil {
		return [32]byte{}, nil
	}
	return latest.ContentHash, nil
}

func (d *memoryDriver) InsertRelation(ctx context.Context, r *core.Relation) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := *r
	d.relations = append(d.relations, &cp)
	return nil
}

func (d *memoryDriver) ListRelations(ctx context.Context, memoryID core.ID) ([]*core.Relation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*core.Relation
	for _, r := range d.relations {
		if r.SourceID == memoryID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (d *memoryDriver) InsertACLEntry(ctx context.Context, a *core.ACLEntry) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := *a
	d.acl = append(d.acl, &cp)
	return nil
}

func (d *memoryDriver) ListACLEntries(ctx context.Context, memoryID core.ID) ([]*core.ACLEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*core.ACLEntry
	for _, a := range d.acl {
		if a.MemoryID == memoryID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (d *memoryDriver) InsertDelegation(ctx context.Context, del *core.Delegation) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := *del
	d.delegations[del.ID] = &cp
	return nil
}

func (d *memoryDriver) GetDelegation(ctx context.Context, id core.ID) (*core.Delegation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	del, ok := d.delegations[id]
	if !ok {
		return nil, core.NewEngineError("GetDelegation", core.KindNotFound, errFakeNotFound)
	}
	cp := *del
	return &cp, nil
}

func (d *memoryDriver) ListDelegationsFor(ctx context.Context, delegateID string) ([]*core.Delegation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*core.Delegation
	for _, del := range d.delegations {
		if del.DelegateID == delegateID {
			cp := *del
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (d *memoryDriver) RevokeDelegation(ctx context.Context, id core.ID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	del, ok := d.delegations[id]
	if !ok {
		return core.NewEngineError("RevokeDelegation", core.KindNotFound, errFakeNotFound)
	}
	now := time.Now()
	del.RevokedAt = &now
	return nil
}

func (d *memoryDriver) ListAccessibleMemoryIDs(ctx context.Context, principalID string) ([]core.ID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := time.Now()
	seen := make(map[core.ID]struct{})

	for _, m := range d.memories {
		if m.AgentID == principalID {
			seen[m.ID] = struct{}{}
		}
	}
	for _, a := range d.acl {
		if a.PrincipalID == principalID && !a.Expired(now) {
			seen[a.MemoryID] = struct{}{}
		}
	}
	for _, del := range d.delegations {
		if del.DelegateID != principalID || !del.Active(now) {
			continue
		}
		for _, m := range d.memories {
			if del.Scope.Contains(m) {
				seen[m.ID] = struct{}{}
			}
		}
	}

	out := make([]core.ID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	return out, nil
}

func (d *memoryDriver) InsertCheckpoint(ctx context.Context, c *core.Checkpoint) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := *c
	d.checkpoints[c.ID] = &cp
	return nil
}

func (d *memoryDriver) GetCheckpoint(ctx context.Context, id core.ID) (*core.Checkpoint, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.checkpoints[id]
	if !ok {
		return nil, core.NewEngineError("GetCheckpoint", core.KindNotFound, errFakeNotFound)
	}
	cp := *c
	return &cp, nil
}

func (d *memoryDriver) ListCheckpoints(ctx context.Context, threadID, branchName string) ([]*core.Checkpoint, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*core.Checkpoint
	for _, c := range d.checkpoints {
		if c.ThreadID == threadID && c.BranchName == branchName {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (d *memoryDriver) LatestCheckpoint(ctx context.Context, threadID, branchName string) (*core.Checkpoint, error) {
	list, err := d.ListCheckpoints(ctx, threadID, branchName)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return list[len(list)-1], nil
}

func (d *memoryDriver) GetAgentProfile(ctx context.Context, agentID string) (*core.AgentProfile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.profiles[agentID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (d *memoryDriver) UpsertAgentProfile(ctx context.Context, p *core.AgentProfile) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := *p
	d.profiles[p.AgentID] = &cp
	return nil
}

func (d *memoryDriver) CleanupExpired(ctx context.Context, now time.Time) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for id, m := range d.memories {
		if m.ExpiresAt != nil && !m.ExpiresAt.After(now) {
			delete(d.memories, id)
			n++
		}
	}
	return n, nil
}

func (d *memoryDriver) Close() error { return nil }

var errFakeNotFound = &fakeError{"not found"}

type fakeError struct{ msg string }

func (e *fakeError) Error() string { return e.msg }
