// Package sqlite implements core.Driver over SQLite, grounded on the
// teacher's pkg/storage/sqlite/client.go (table-per-entity layout,
// database/sql + mattn/go-sqlite3, JSON-serialized map/embedding columns,
// hand-rolled cosine scan for similarity search, WAL mode).
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mnemohq/mnemo/pkg/core"
	"github.com/mnemohq/mnemo/pkg/storage"
)

// Client implements core.Driver over a SQLite database file.
type Client struct {
	db *sql.DB

	// agentLocks serializes chain-append writes per agent_id (spec.md §5:
	// "all writes that append to the same agent's memory-hash-chain or
	// event-hash-chain MUST serialize"), grounded on the teacher's single
	// sync.RWMutex on Client, generalized to a named-lock-per-agent map so
	// one agent's append never blocks another's.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// Config configures the SQLite backend.
type Config struct {
	DBPath string
}

// NewClient opens (creating if needed) the SQLite database at cfg.DBPath
// and ensures the schema exists.
func NewClient(cfg *Config) (*Client, error) {
	dbDir := filepath.Dir(cfg.DBPath)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0o755); err != nil {
			return nil, core.NewEngineError("NewClient", core.KindStorage, err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, core.NewEngineError("NewClient", core.KindStorage, err)
	}
	if err := db.Ping(); err != nil {
		return nil, core.NewEngineError("NewClient", core.KindStorage, err)
	}

	c := &Client{db: db, locks: make(map[string]*sync.Mutex)}
	if err := c.initSchema(context.Background()); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) agentLock(agentID string) *sync.Mutex {
	c.locksMu.Lock()
	defer c.locksMu.Unlock()
	l, ok := c.locks[agentID]
	if !ok {
		l = &sync.Mutex{}
		c.locks[agentID] = l
	}
	return l
}

func (c *Client) initSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			org_id TEXT,
			thread_id TEXT,
			content TEXT NOT NULL,
			embedding TEXT,
			memory_type TEXT NOT NULL,
			scope TEXT NOT NULL,
			importance REAL NOT NULL,
			tags TEXT,
			metadata TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			last_accessed_at DATETIME,
			access_count INTEGER NOT NULL DEFAULT 0,
			expires_at DATETIME,
			decay_rate REAL,
			consolidation_state TEXT NOT NULL,
			created_by TEXT,
			source_type TEXT,
			source_id TEXT,
			version INTEGER NOT NULL DEFAULT 1,
			prev_version_id TEXT,
			content_hash BLOB,
			prev_hash BLOB,
			quarantined INTEGER NOT NULL DEFAULT 0,
			quarantine_reason TEXT,
			deleted_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_agent ON memories(agent_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS agent_events (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			thread_id TEXT,
			run_id TEXT,
			parent_event_id TEXT,
			event_type TEXT NOT NULL,
			payload TEXT,
			telemetry TEXT,
			timestamp DATETIME NOT NULL,
			logical_clock INTEGER NOT NULL,
			content_hash BLOB,
			prev_hash BLOB
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_agent ON agent_events(agent_id, logical_clock)`,
		`CREATE INDEX IF NOT EXISTS idx_events_parent ON agent_events(parent_event_id)`,
		`CREATE TABLE IF NOT EXISTS relations (
			id TEXT PRIMARY KEY,
			source_id TEXT NOT NULL,
			target_id TEXT NOT NULL,
			relation_type TEXT NOT NULL,
			weight REAL NOT NULL,
			metadata TEXT,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_relations_source ON relations(source_id)`,
		`CREATE TABLE IF NOT EXISTS acl_entries (
			id TEXT PRIMARY KEY,
			memory_id TEXT NOT NULL,
			principal_type TEXT NOT NULL,
			principal_id TEXT NOT NULL,
			permission INTEGER NOT NULL,
			granted_by TEXT,
			created_at DATETIME NOT NULL,
			expires_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_acl_memory ON acl_entries(memory_id)`,
		`CREATE TABLE IF NOT EXISTS delegations (
			id TEXT PRIMARY KEY,
			delegator_id TEXT NOT NULL,
			delegate_id TEXT NOT NULL,
			permission INTEGER NOT NULL,
			scope_kind TEXT NOT NULL,
			scope_tags TEXT,
			scope_memory_ids TEXT,
			max_depth INTEGER NOT NULL,
			current_depth INTEGER NOT NULL,
			parent_delegation_id TEXT,
			created_at DATETIME NOT NULL,
			expires_at DATETIME,
			revoked_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_delegations_delegate ON delegations(delegate_id)`,
		`CREATE TABLE IF NOT EXISTS checkpoints (
			id TEXT PRIMARY KEY,
			thread_id TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			parent_id TEXT,
			branch_name TEXT NOT NULL,
			state_snapshot TEXT,
			state_diff TEXT,
			memory_refs TEXT,
			event_cursor TEXT,
			label TEXT,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_checkpoints_branch ON checkpoints(thread_id, branch_name, created_at)`,
		`CREATE TABLE IF NOT EXISTS agent_profiles (
			agent_id TEXT PRIMARY KEY,
			avg_importance REAL,
			avg_content_length REAL,
			total_memories INTEGER,
			last_write_at DATETIME,
			recent_write_times TEXT
		)`,
	}

	for _, stmt := range stmts {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return core.NewEngineError("initSchema", core.KindStorage, err)
		}
	}
	return nil
}

// --- Memories ---

func (c *Client) InsertMemory(ctx context.Context, m *core.MemoryRecord) error {
	lock := c.agentLock(m.AgentID)
	lock.Lock()
	defer lock.Unlock()

	embedding, err := storage.EncodeEmbedding(m.Embedding)
	if err != nil {
		return err
	}
	tags, err := storage.EncodeTags(m.Tags)
	if err != nil {
		return err
	}
	metadata, err := storage.EncodeMetadata(m.Metadata)
	if err != nil {
		return err
	}

	_, err = c.db.ExecContext(ctx, `INSERT INTO memories (
		id, agent_id, org_id, thread_id, content, embedding, memory_type, scope, importance,
		tags, metadata, created_at, updated_at, last_accessed_at, access_count, expires_at,
		decay_rate, consolidation_state, created_by, source_type, source_id, version,
		prev_version_id, content_hash, prev_hash, quarantined, quarantine_reason, deleted_at
	) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		m.ID.String(), m.AgentID, m.OrgID, m.ThreadID, m.Content, embedding, string(m.MemoryType), string(m.Scope), m.Importance,
		tags, metadata, m.CreatedAt, m.UpdatedAt, nullTime(m.LastAccessedAt), m.AccessCount, nullTime(m.ExpiresAt),
		nullFloat(m.DecayRate), string(m.ConsolidationState), m.Provenance.CreatedBy, m.Provenance.SourceType, m.Provenance.SourceID, m.Version,
		nullID(m.PrevVersionID), m.ContentHash[:], m.PrevHash[:], m.Quarantined, m.QuarantineReason, nullTime(m.DeletedAt))
	if err != nil {
		return core.NewEngineError("InsertMemory", core.KindStorage, err)
	}
	return nil
}

func (c *Client) GetMemory(ctx context.Context, id core.ID) (*core.MemoryRecord, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+memoryColumns+` FROM memories WHERE id = ?`, id.String())
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, core.NewEngineError("GetMemory", core.KindNotFound, err)
	}
	if err != nil {
		return nil, core.NewEngineError("GetMemory", core.KindStorage, err)
	}
	return m, nil
}

func (c *Client) UpdateMemory(ctx context.Context, m *core.MemoryRecord) error {
	embedding, err := storage.EncodeEmbedding(m.Embedding)
	if err != nil {
		return err
	}
	tags, err := storage.EncodeTags(m.Tags)
	if err != nil {
		return err
	}
	metadata, err := storage.EncodeMetadata(m.Metadata)
	if err != nil {
		return err
	}

	observed := m.Version
	m.Version++

	res, err := c.db.ExecContext(ctx, `UPDATE memories SET
		content=?, embedding=?, memory_type=?, scope=?, importance=?, tags=?, metadata=?,
		updated_at=?, last_accessed_at=?, access_count=?, expires_at=?, decay_rate=?,
		consolidation_state=?, version=?, prev_version_id=?, quarantined=?, quarantine_reason=?,
		deleted_at=?
		WHERE id=? AND version=?`,
		m.Content, embedding, string(m.MemoryType), string(m.Scope), m.Importance, tags, metadata,
		m.UpdatedAt, nullTime(m.LastAccessedAt), m.AccessCount, nullTime(m.ExpiresAt), nullFloat(m.DecayRate),
		string(m.ConsolidationState), m.Version, nullID(m.PrevVersionID), m.Quarantined, m.QuarantineReason,
		nullTime(m.DeletedAt), m.ID.String(), observed)
	if err != nil {
		return core.NewEngineError("UpdateMemory", core.KindStorage, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		m.Version = observed
		return core.NewEngineError("UpdateMemory", core.KindConflict, errVersionMismatch)
	}
	return nil
}

func (c *Client) ListMemories(ctx context.Context, f core.MemoryFilter, limit, offset int) ([]*core.MemoryRecord, error) {
	query := `SELECT ` + memoryColumns + ` FROM memories WHERE 1=1`
	var args []interface{}

	if f.AgentID != "" {
		query += ` AND agent_id = ?`
		args = append(args, f.AgentID)
	}
	if f.OrgID != "" {
		query += ` AND org_id = ?`
		args = append(args, f.OrgID)
	}
	if f.ThreadID != "" {
		query += ` AND thread_id = ?`
		args = append(args, f.ThreadID)
	}
	if len(f.MemoryTypes) > 0 {
		query += ` AND memory_type IN (` + placeholders(len(f.MemoryTypes)) + `)`
		for _, t := range f.MemoryTypes {
			args = append(args, string(t))
		}
	}
	if f.Since != nil {
		query += ` AND created_at >= ?`
		args = append(args, *f.Since)
	}
	if f.Until != nil {
		query += ` AND created_at <= ?`
		args = append(args, *f.Until)
	}
	if f.ExcludeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	query += ` ORDER BY created_at ASC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d OFFSET %d`, limit, offset)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, core.NewEngineError("ListMemories", core.KindStorage, err)
	}
	defer rows.Close()

	var out []*core.MemoryRecord
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, core.NewEngineError("ListMemories", core.KindStorage, err)
		}
		if len(f.Tags) > 0 && !anyTagMatches(m, f.Tags) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// SearchMemoriesByVector scans all candidate rows and scores by cosine
// similarity, grounded on the teacher's cosineSimilarity/sortByScore
// (pkg/storage/sqlite/client.go) since SQLite has no native vector
// operator; the coordinator, not this backend, restricts agentIDs to the
// accessible id set (spec.md §4.2 permission-safe ANN).
func (c *Client) SearchMemoriesByVector(ctx context.Context, agentIDs []string, vector []float32, limit int) ([]*core.MemoryRecord, []float64, error) {
	f := core.MemoryFilter{ExcludeDeleted: true}
	var candidates []*core.MemoryRecord
	if len(agentIDs) == 0 {
		all, err := c.ListMemories(ctx, f, 0, 0)
		if err != nil {
			return nil, nil, err
		}
		candidates = all
	} else {
		for _, agentID := range agentIDs {
			f.AgentID = agentID
			batch, err := c.ListMemories(ctx, f, 0, 0)
			if err != nil {
				return nil, nil, err
			}
			candidates = append(candidates, batch...)
		}
	}

	type scored struct {
		m     *core.MemoryRecord
		score float64
	}
	var results []scored
	for _, m := range candidates {
		if m.Embedding == nil {
			continue
		}
		results = append(results, scored{m: m, score: cosineSimilarity(vector, m.Embedding)})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].score > results[j].score })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	memories := make([]*core.MemoryRecord, len(results))
	scores := make([]float64, len(results))
	for i, r := range results {
		memories[i] = r.m
		scores[i] = r.score
	}
	return memories, scores, nil
}

func (c *Client) DeleteMemory(ctx context.Context, id core.ID, hard bool) error {
	if !hard {
		_, err := c.db.ExecContext(ctx, `UPDATE memories SET deleted_at = ? WHERE id = ?`, time.Now(), id.String())
		if err != nil {
			return core.NewEngineError("DeleteMemory", core.KindStorage, err)
		}
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return core.NewEngineError("DeleteMemory", core.KindStorage, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id.String())
	if err != nil {
		return core.NewEngineError("DeleteMemory", core.KindStorage, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.NewEngineError("DeleteMemory", core.KindNotFound, errAlreadyAbsent)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM relations WHERE source_id = ? OR target_id = ?`, id.String(), id.String()); err != nil {
		return core.NewEngineError("DeleteMemory", core.KindStorage, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM acl_entries WHERE memory_id = ?`, id.String()); err != nil {
		return core.NewEngineError("DeleteMemory", core.KindStorage, err)
	}
	return tx.Commit()
}

func (c *Client) GetLatestMemoryHash(ctx context.Context, agentID string) ([32]byte, error) {
	var hash []byte
	err := c.db.QueryRowContext(ctx, `SELECT content_hash FROM memories WHERE agent_id = ? ORDER BY created_at DESC, version DESC LIMIT 1`, agentID).Scan(&hash)
	if err == sql.ErrNoRows {
		return [32]byte{}, nil
	}
	if err != nil {
		return [32]byte{}, core.NewEngineError("GetLatestMemoryHash", core.KindStorage, err)
	}
	var out [32]byte
	copy(out[:], hash)
	return out, nil
}

// --- Events ---

func (c *Client) InsertEvent(ctx context.Context, e *core.AgentEvent) error {
	lock := c.agentLock(e.AgentID)
	lock.Lock()
	defer lock.Unlock()

	payload, err := storage.EncodeMetadata(e.Payload)
	if err != nil {
		return err
	}
	telemetry, err := storage.EncodeMetadata(telemetryToMap(e.Telemetry))
	if err != nil {
		return err
	}

	_, err = c.db.ExecContext(ctx, `INSERT INTO agent_events (
		id, agent_id, thread_id, run_id, parent_event_id, event_type, payload, telemetry,
		timestamp, logical_clock, content_hash, prev_hash
	) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		e.ID.String(), e.AgentID, e.ThreadID, e.RunID, nullID(e.ParentEventID), string(e.EventType), payload, telemetry,
		e.Timestamp, e.LogicalClock, e.ContentHash[:], e.PrevHash[:])
	if err != nil {
		return core.NewEngineError("InsertEvent", core.KindStorage, err)
	}
	return nil
}

func (c *Client) GetEvent(ctx context.Context, id core.ID) (*core.AgentEvent, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM agent_events WHERE id = ?`, id.String())
	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, core.NewEngineError("GetEvent", core.KindNotFound, err)
	}
	if err != nil {
		return nil, core.NewEngineError("GetEvent", core.KindStorage, err)
	}
	return e, nil
}

func (c *Client) ListEvents(ctx context.Context, agentID, threadID string, since core.ID, limit int) ([]*core.AgentEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM agent_events WHERE agent_id = ?`
	args := []interface{}{agentID}
	if threadID != "" {
		query += ` AND thread_id = ?`
		args = append(args, threadID)
	}
	if !since.IsZero() {
		query += ` AND logical_clock > (SELECT logical_clock FROM agent_events WHERE id = ?)`
		args = append(args, since.String())
	}
	query += ` ORDER BY logical_clock ASC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, core.NewEngineError("ListEvents", core.KindStorage, err)
	}
	defer rows.Close()

	var out []*core.AgentEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, core.NewEngineError("ListEvents", core.KindStorage, err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (c *Client) ListChildEvents(ctx context.Context, parentID core.ID) ([]*core.AgentEvent, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT `+eventColumns+` FROM agent_events WHERE parent_event_id = ? ORDER BY logical_clock ASC`, parentID.String())
	if err != nil {
		return nil, core.NewEngineError("ListChildEvents", core.KindStorage, err)
	}
	defer rows.Close()

	var out []*core.AgentEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, core.NewEngineError("ListChildEvents", core.KindStorage, err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (c *Client) GetLatestEventHash(ctx context.Context, agentID string) ([32]byte, error) {
	var hash []byte
	err := c.db.QueryRowContext(ctx, `SELECT content_hash FROM agent_events WHERE agent_id = ? ORDER BY logical_clock DESC LIMIT 1`, agentID).Scan(&hash)
	if err == sql.ErrNoRows {
		return [32]byte{}, nil
	}
	if err != nil {
		return [32]byte{}, core.NewEngineError("GetLatestEventHash", core.KindStorage, err)
	}
	var out [32]byte
	copy(out[:], hash)
	return out, nil
}

// --- Relations ---

func (c *Client) InsertRelation(ctx context.Context, r *core.Relation) error {
	metadata, err := storage.EncodeMetadata(r.Metadata)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx, `INSERT INTO relations (id, source_id, target_id, relation_type, weight, metadata, created_at)
		VALUES (?,?,?,?,?,?,?)`, r.ID.String(), r.SourceID.String(), r.TargetID.String(), r.RelationType, r.Weight, metadata, r.CreatedAt)
	if err != nil {
		return core.NewEngineError("InsertRelation", core.KindStorage, err)
	}
	return nil
}

func (c *Client) ListRelations(ctx context.Context, memoryID core.ID) ([]*core.Relation, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT id, source_id, target_id, relation_type, weight, metadata, created_at
		FROM relations WHERE source_id = ? OR target_id = ?`, memoryID.String(), memoryID.String())
	if err != nil {
		return nil, core.NewEngineError("ListRelations", core.KindStorage, err)
	}
	defer rows.Close()

	var out []*core.Relation
	for rows.Next() {
		var idStr, sourceStr, targetStr, metadataRaw string
		r := &core.Relation{}
		if err := rows.Scan(&idStr, &sourceStr, &targetStr, &r.RelationType, &r.Weight, &metadataRaw, &r.CreatedAt); err != nil {
			return nil, core.NewEngineError("ListRelations", core.KindStorage, err)
		}
		r.ID, _ = core.ParseID(idStr)
		r.SourceID, _ = core.ParseID(sourceStr)
		r.TargetID, _ = core.ParseID(targetStr)
		r.Metadata, _ = storage.DecodeMetadata(metadataRaw)
		out = append(out, r)
	}
	return out, nil
}

// --- ACL ---

func (c *Client) InsertACLEntry(ctx context.Context, a *core.ACLEntry) error {
	_, err := c.db.ExecContext(ctx, `INSERT INTO acl_entries (id, memory_id, principal_type, principal_id, permission, granted_by, created_at, expires_at)
		VALUES (?,?,?,?,?,?,?,?)`, a.ID.String(), a.MemoryID.String(), string(a.PrincipalType), a.PrincipalID, int(a.Permission), a.GrantedBy, a.CreatedAt, nullTime(a.ExpiresAt))
	if err != nil {
		return core.NewEngineError("InsertACLEntry", core.KindStorage, err)
	}
	return nil
}

func (c *Client) ListACLEntries(ctx context.Context, memoryID core.ID) ([]*core.ACLEntry, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT id, memory_id, principal_type, principal_id, permission, granted_by, created_at, expires_at
		FROM acl_entries WHERE memory_id = ?`, memoryID.String())
	if err != nil {
		return nil, core.NewEngineError("ListACLEntries", core.KindStorage, err)
	}
	defer rows.Close()

	var out []*core.ACLEntry
	for rows.Next() {
		var idStr, memStr, principalType string
		var permission int
		var expires sql.NullTime
		a := &core.ACLEntry{}
		if err := rows.Scan(&idStr, &memStr, &principalType, &a.PrincipalID, &permission, &a.GrantedBy, &a.CreatedAt, &expires); err != nil {
			return nil, core.NewEngineError("ListACLEntries", core.KindStorage, err)
		}
		a.ID, _ = core.ParseID(idStr)
		a.MemoryID, _ = core.ParseID(memStr)
		a.PrincipalType = core.PrincipalType(principalType)
		a.Permission = core.Permission(permission)
		if expires.Valid {
			a.ExpiresAt = &expires.Time
		}
		out = append(out, a)
	}
	return out, nil
}

// --- Delegations ---

func (c *Client) InsertDelegation(ctx context.Context, d *core.Delegation) error {
	tags, err := storage.EncodeTags(d.Scope.Tags)
	if err != nil {
		return err
	}
	memIDs, err := encodeIDSet(d.Scope.MemoryIDs)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx, `INSERT INTO delegations (
		id, delegator_id, delegate_id, permission, scope_kind, scope_tags, scope_memory_ids,
		max_depth, current_depth, parent_delegation_id, created_at, expires_at, revoked_at
	) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		d.ID.String(), d.DelegatorID, d.DelegateID, int(d.Permission), string(d.Scope.Kind), tags, memIDs,
		d.MaxDepth, d.CurrentDepth, nullID(d.ParentDelegationID), d.CreatedAt, nullTime(d.ExpiresAt), nullTime(d.RevokedAt))
	if err != nil {
		return core.NewEngineError("InsertDelegation", core.KindStorage, err)
	}
	return nil
}

func (c *Client) GetDelegation(ctx context.Context, id core.ID) (*core.Delegation, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+delegationColumns+` FROM delegations WHERE id = ?`, id.String())
	d, err := scanDelegation(row)
	if err == sql.ErrNoRows {
		return nil, core.NewEngineError("GetDelegation", core.KindNotFound, err)
	}
	if err != nil {
		return nil, core.NewEngineError("GetDelegation", core.KindStorage, err)
	}
	return d, nil
}

func (c *Client) ListDelegationsFor(ctx context.Context, delegateID string) ([]*core.Delegation, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT `+delegationColumns+` FROM delegations WHERE delegate_id = ?`, delegateID)
	if err != nil {
		return nil, core.NewEngineError("ListDelegationsFor", core.KindStorage, err)
	}
	defer rows.Close()

	var out []*core.Delegation
	for rows.Next() {
		d, err := scanDelegation(rows)
		if err != nil {
			return nil, core.NewEngineError("ListDelegationsFor", core.KindStorage, err)
		}
		out = append(out, d)
	}
	return out, nil
}

func (c *Client) RevokeDelegation(ctx context.Context, id core.ID) error {
	_, err := c.db.ExecContext(ctx, `UPDATE delegations SET revoked_at = ? WHERE id = ?`, time.Now(), id.String())
	if err != nil {
		return core.NewEngineError("RevokeDelegation", core.KindStorage, err)
	}
	return nil
}

func (c *Client) ListAccessibleMemoryIDs(ctx context.Context, principalID string) ([]core.ID, error) {
	ids := make(map[core.ID]struct{})

	owned, err := c.ListMemories(ctx, core.MemoryFilter{AgentID: principalID, ExcludeDeleted: true}, 0, 0)
	if err != nil {
		return nil, err
	}
	for _, m := range owned {
		if !m.Excluded(time.Now()) {
			ids[m.ID] = struct{}{}
		}
	}

	rows, err := c.db.QueryContext(ctx, `SELECT memory_id, permission, expires_at FROM acl_entries WHERE principal_id = ?`, principalID)
	if err != nil {
		return nil, core.NewEngineError("ListAccessibleMemoryIDs", core.KindStorage, err)
	}
	for rows.Next() {
		var memStr string
		var permission int
		var expires sql.NullTime
		if err := rows.Scan(&memStr, &permission, &expires); err != nil {
			rows.Close()
			return nil, core.NewEngineError("ListAccessibleMemoryIDs", core.KindStorage, err)
		}
		if expires.Valid && !expires.Time.After(time.Now()) {
			continue
		}
		if id, err := core.ParseID(memStr); err == nil {
			ids[id] = struct{}{}
		}
	}
	rows.Close()

	delegations, err := c.ListDelegationsFor(ctx, principalID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	var all []*core.MemoryRecord
	for _, d := range delegations {
		if !d.Active(now) {
			continue
		}
		if d.Scope.Kind == core.DelegationScopeByMemory {
			for id := range d.Scope.MemoryIDs {
				ids[id] = struct{}{}
			}
			continue
		}
		if all == nil {
			if all, err = c.ListMemories(ctx, core.MemoryFilter{ExcludeDeleted: true}, 0, 0); err != nil {
				return nil, err
			}
		}
		for _, m := range all {
			if d.Scope.Contains(m) {
				ids[m.ID] = struct{}{}
			}
		}
	}

	out := make([]core.ID, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	return out, nil
}

// --- Checkpoints ---

func (c *Client) InsertCheckpoint(ctx context.Context, cp *core.Checkpoint) error {
	snapshot, err := storage.EncodeMetadata(cp.StateSnapshot)
	if err != nil {
		return err
	}
	diff, err := storage.EncodeMetadata(cp.StateDiff)
	if err != nil {
		return err
	}
	refs, err := encodeIDSet(cp.MemoryRefs)
	if err != nil {
		return err
	}

	_, err = c.db.ExecContext(ctx, `INSERT INTO checkpoints (
		id, thread_id, agent_id, parent_id, branch_name, state_snapshot, state_diff,
		memory_refs, event_cursor, label, created_at
	) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		cp.ID.String(), cp.ThreadID, cp.AgentID, nullID(cp.ParentID), cp.BranchName, snapshot, diff,
		refs, nullID(cp.EventCursor), cp.Label, cp.CreatedAt)
	if err != nil {
		return core.NewEngineError("InsertCheckpoint", core.KindStorage, err)
	}
	return nil
}

func (c *Client) GetCheckpoint(ctx context.Context, id core.ID) (*core.Checkpoint, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+checkpointColumns+` FROM checkpoints WHERE id = ?`, id.String())
	cp, err := scanCheckpoint(row)
	if err == sql.ErrNoRows {
		return nil, core.NewEngineError("GetCheckpoint", core.KindNotFound, err)
	}
	if err != nil {
		return nil, core.NewEngineError("GetCheckpoint", core.KindStorage, err)
	}
	return cp, nil
}

func (c *Client) ListCheckpoints(ctx context.Context, threadID, branchName string) ([]*core.Checkpoint, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT `+checkpointColumns+` FROM checkpoints WHERE thread_id = ? AND branch_name = ? ORDER BY created_at ASC`, threadID, branchName)
	if err != nil {
		return nil, core.NewEngineError("ListCheckpoints", core.KindStorage, err)
	}
	defer rows.Close()

	var out []*core.Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, core.NewEngineError("ListCheckpoints", core.KindStorage, err)
		}
		out = append(out, cp)
	}
	return out, nil
}

func (c *Client) LatestCheckpoint(ctx context.Context, threadID, branchName string) (*core.Checkpoint, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+checkpointColumns+` FROM checkpoints WHERE thread_id = ? AND branch_name = ? ORDER BY created_at DESC LIMIT 1`, threadID, branchName)
	cp, err := scanCheckpoint(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, core.NewEngineError("LatestCheckpoint", core.KindStorage, err)
	}
	return cp, nil
}

// --- Agent profiles ---

func (c *Client) GetAgentProfile(ctx context.Context, agentID string) (*core.AgentProfile, error) {
	row := c.db.QueryRowContext(ctx, `SELECT agent_id, avg_importance, avg_content_length, total_memories, last_write_at, recent_write_times FROM agent_profiles WHERE agent_id = ?`, agentID)
	p := &core.AgentProfile{}
	var recentRaw string
	err := row.Scan(&p.AgentID, &p.AvgImportance, &p.AvgContentLength, &p.TotalMemories, &p.LastWriteAt, &recentRaw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, core.NewEngineError("GetAgentProfile", core.KindStorage, err)
	}
	p.RecentWriteTimes = decodeTimes(recentRaw)
	return p, nil
}

func (c *Client) UpsertAgentProfile(ctx context.Context, p *core.AgentProfile) error {
	recent, err := encodeTimes(p.RecentWriteTimes)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx, `INSERT INTO agent_profiles (agent_id, avg_importance, avg_content_length, total_memories, last_write_at, recent_write_times)
		VALUES (?,?,?,?,?,?)
		ON CONFLICT(agent_id) DO UPDATE SET avg_importance=excluded.avg_importance, avg_content_length=excluded.avg_content_length,
		total_memories=excluded.total_memories, last_write_at=excluded.last_write_at, recent_write_times=excluded.recent_write_times`,
		p.AgentID, p.AvgImportance, p.AvgContentLength, p.TotalMemories, p.LastWriteAt, recent)
	if err != nil {
		return core.NewEngineError("UpsertAgentProfile", core.KindStorage, err)
	}
	return nil
}

// --- Maintenance ---

func (c *Client) CleanupExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM memories WHERE expires_at IS NOT NULL AND expires_at <= ?`, now)
	if err != nil {
		return 0, core.NewEngineError("CleanupExpired", core.KindStorage, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (c *Client) Close() error {
	return c.db.Close()
}
