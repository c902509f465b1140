// Package oceanbase implements a cold-storage archive tier over a
// MySQL-compatible OceanBase instance, grounded on the teacher's
// pkg/storage/oceanbase/client.go (database/sql + go-sql-driver/mysql, DSN
// assembled from discrete fields).
//
// Unlike pkg/storage/sqlite and pkg/storage/postgres this package does not
// implement core.Driver: the archive tier never serves Recall, never
// participates in the hash chain, and is written to by exactly one
// operation, forget(strategy=archive) (spec.md §4.3). The narrower
// archiveTier interface in pkg/engine keeps that boundary explicit instead of forcing the full
// surface onto a tier that can't support it (no chain continuity, no ACL
// lookups, no checkpoints).
package oceanbase

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/mnemohq/mnemo/pkg/core"
	"github.com/mnemohq/mnemo/pkg/storage"
)

// Client archives forgotten memories to an OceanBase table.
type Client struct {
	db *sql.DB
}

// Config contains OceanBase connection configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

// NewClient opens a connection pool against cfg and ensures the archive
// table exists.
func NewClient(cfg *Config) (*Client, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, core.NewEngineError("NewClient", core.KindStorage, err)
	}
	if err := db.Ping(); err != nil {
		return nil, core.NewEngineError("NewClient", core.KindStorage, err)
	}

	c := &Client{db: db}
	if err := c.initSchema(context.Background()); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) initSchema(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS archived_memories (
		id VARCHAR(32) PRIMARY KEY,
		agent_id VARCHAR(255) NOT NULL,
		org_id VARCHAR(255),
		thread_id VARCHAR(255),
		content TEXT NOT NULL,
		memory_type VARCHAR(32) NOT NULL,
		scope VARCHAR(32) NOT NULL,
		importance DOUBLE NOT NULL,
		tags TEXT,
		metadata TEXT,
		created_at DATETIME NOT NULL,
		content_hash BINARY(32),
		archived_at DATETIME NOT NULL,
		archive_reason TEXT,
		INDEX idx_archived_agent (agent_id, archived_at)
	)`)
	if err != nil {
		return core.NewEngineError("initSchema", core.KindStorage, err)
	}
	return nil
}

// Archive writes m to cold storage with the given reason (spec.md §4.3
// forget(strategy=archive)). The memory's active-tier row is removed by the
// caller via the primary driver's DeleteMemory(hard=true) once this
// succeeds.
func (c *Client) Archive(ctx context.Context, m *core.MemoryRecord, reason string, now time.Time) error {
	tags, err := storage.EncodeTags(m.Tags)
	if err != nil {
		return err
	}
	metadata, err := storage.EncodeMetadata(m.Metadata)
	if err != nil {
		return err
	}

	_, err = c.db.ExecContext(ctx, `INSERT INTO archived_memories (
		id, agent_id, org_id, thread_id, content, memory_type, scope, importance, tags, metadata,
		created_at, content_hash, archived_at, archive_reason
	) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		m.ID.String(), m.AgentID, m.OrgID, m.ThreadID, m.Content, string(m.MemoryType), string(m.Scope), m.Importance,
		tags, metadata, m.CreatedAt, m.ContentHash[:], now, reason)
	if err != nil {
		return core.NewEngineError("Archive", core.KindStorage, err)
	}
	return nil
}

// Retrieve fetches an archived memory by id, for audit or restore flows.
func (c *Client) Retrieve(ctx context.Context, id core.ID) (*core.MemoryRecord, error) {
	row := c.db.QueryRowContext(ctx, `SELECT id, agent_id, org_id, thread_id, content, memory_type, scope,
		importance, tags, metadata, created_at, content_hash FROM archived_memories WHERE id = ?`, id.String())

	var (
		idStr, agentID, orgID, threadID, content, memoryType, scope, tagsRaw, metadataRaw string
		importance                                                                         float64
		createdAt                                                                          time.Time
		contentHash                                                                        []byte
	)
	if err := row.Scan(&idStr, &agentID, &orgID, &threadID, &content, &memoryType, &scope, &importance,
		&tagsRaw, &metadataRaw, &createdAt, &contentHash); err != nil {
		if err == sql.ErrNoRows {
			return nil, core.NewEngineError("Retrieve", core.KindNotFound, err)
		}
		return nil, core.NewEngineError("Retrieve", core.KindStorage, err)
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
		ConsolidationState: core.StateArchived,
	}
	var err error
	if m.ID, err = core.ParseID(idStr); err != nil {
		return nil, core.NewEngineError("Retrieve", core.KindStorage, err)
	}
	if m.Tags, err = storage.DecodeTags(tagsRaw); err != nil {
		return nil, err
	}
	if m.Metadata, err = storage.DecodeMetadata(metadataRaw); err != nil {
		return nil, err
	}
	copy(m.ContentHash[:], contentHash)

	return m, nil
}

// ListArchived returns archived memories for an agent, most recently
// archived first.
func (c *Client) ListArchived(ctx context.Context, agentID string, limit int) ([]*core.MemoryRecord, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT id FROM archived_memories WHERE agent_id = ? ORDER BY archived_at DESC LIMIT ?`, agentID, limit)
	if err != nil {
		return nil, core.NewEngineError("ListArchived", core.KindStorage, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, core.NewEngineError("ListArchived", core.KindStorage, err)
		}
		ids = append(ids, id)
	}

	out := make([]*core.MemoryRecord, 0, len(ids))
	for _, idStr := range ids {
		id, err := core.ParseID(idStr)
		if err != nil {
			continue
		}
		m, err := c.Retrieve(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}
