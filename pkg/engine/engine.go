// Package engine wires together the storage, index, authorization, cipher,
// and lifecycle components into the Mnemo coordinator.
//
// It lives outside pkg/core because pkg/auth imports pkg/core to resolve
// permissions against core.Driver and core.MemoryRecord; a coordinator type
// that composes auth.Resolver cannot itself live in pkg/core without
// creating an import cycle (core -> auth -> core). Engine plays the role the
// teacher's pkg/core/memory.go Client played, generalized across the new
// storage/embedding/summarizer provider sets.
package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/mnemohq/mnemo/pkg/auth"
	"github.com/mnemohq/mnemo/pkg/cipher"
	"github.com/mnemohq/mnemo/pkg/core"
	"github.com/mnemohq/mnemo/pkg/embedding"
	"github.com/mnemohq/mnemo/pkg/embedding/noop"
	openaiembed "github.com/mnemohq/mnemo/pkg/embedding/openai"
	"github.com/mnemohq/mnemo/pkg/fulltext"
	"github.com/mnemohq/mnemo/pkg/lifecycle"
	"github.com/mnemohq/mnemo/pkg/llm"
	"github.com/mnemohq/mnemo/pkg/storage/oceanbase"
	"github.com/mnemohq/mnemo/pkg/storage/postgres"
	"github.com/mnemohq/mnemo/pkg/storage/sqlite"
	"github.com/mnemohq/mnemo/pkg/vectorindex"
)

// archiveTier is the narrower contract the oceanbase client satisfies for
// the cold-storage tier. It is not a core.Driver: the archive tier never
// serves Recall and is only ever written to by forget(strategy=archive).
type archiveTier interface {
	Archive(ctx context.Context, m *core.MemoryRecord, reason string, now time.Time) error
	Retrieve(ctx context.Context, id core.ID) (*core.MemoryRecord, error)
	ListArchived(ctx context.Context, agentID string, limit int) ([]*core.MemoryRecord, error)
	Close() error
}

// Engine is the Mnemo coordinator: it implements Remember, Recall, Forget,
// Share, Delegate, Checkpoint, Replay, Verify, TraceCausality, and
// ResolveConflict (spec.md §4) by composing a storage driver, an
// authorization resolver, in-process vector and lexical indexes, an
// embedding provider, and the lifecycle subsystems.
type Engine struct {
	driver   core.Driver
	archive  archiveTier // nil unless storage.provider is "oceanbase" or storage.config carries an "archive" map
	authz    *auth.Resolver
	vectors  vectorindex.Index
	lexical  fulltext.Index
	embedder embedding.Provider
	aead     cipher.AEAD // nil when content-at-rest encryption is disabled

	decay        *lifecycle.Engine
	consolidator *lifecycle.Consolidator
	sweeper      *scheduler

	agentsMu sync.Mutex
	agents   map[string]struct{} // agent ids seen by Remember, so the sweeper knows who to run a decay/consolidation pass for

	cfg *core.Config
}

// trackAgent records agentID so the background sweeper's next pass covers
// it. core.Driver has no "list distinct agent_id" query, so the engine
// keeps this set itself rather than asking storage for it on every sweep.
func (e *Engine) trackAgent(agentID string) {
	e.agentsMu.Lock()
	e.agents[agentID] = struct{}{}
	e.agentsMu.Unlock()
}

func (e *Engine) knownAgents() []string {
	e.agentsMu.Lock()
	defer e.agentsMu.Unlock()
	out := make([]string, 0, len(e.agents))
	for id := range e.agents {
		out = append(out, id)
	}
	return out
}

// NewEngine builds an Engine from cfg, selecting concrete storage,
// embedding, cipher, and summarizer implementations by provider name the
// way the teacher's pkg/core/memory.go selected them via initStorage,
// initLLM, and initEmbedder.
func NewEngine(cfg *core.Config) (*Engine, error) {
	if cfg == nil {
		return nil, core.NewEngineError("NewEngine", core.KindValidation, fmt.Errorf("config is required"))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	driver, archive, err := initStorage(&cfg.Storage)
	if err != nil {
		return nil, err
	}

	embedder, err := initEmbedding(&cfg.Embedding)
	if err != nil {
		return nil, err
	}

	var aead cipher.AEAD
	if cfg.Cipher != nil && cfg.Cipher.Enabled {
		aead, err = cipher.NewFromHexKey(cfg.Cipher.KeyHex)
		if err != nil {
			return nil, err
		}
	}

	var summarizer lifecycle.Summarizer
	if cfg.Summarizer != nil {
		provider, err := initSummarizer(cfg.Summarizer)
		if err != nil {
			return nil, err
		}
		summarizer = llm.NewAdapter(provider)
	}

	decayCfg := lifecycle.DefaultDecayConfig()
	consolidationCfg := lifecycle.DefaultConsolidationConfig()

	vectors := vectorindex.New()
	lexical := fulltext.New()
	if cfg.IndexDir != "" {
		if err := vectors.Load(vectorIndexPath(cfg.IndexDir)); err != nil {
			return nil, err
		}
		if err := lexical.Load(fullTextIndexPath(cfg.IndexDir)); err != nil {
			return nil, err
		}
	}

	e := &Engine{
		driver:       driver,
		archive:      archive,
		authz:        auth.New(driver, cfg.Auth.MaxDelegationDepth),
		vectors:      vectors,
		lexical:      lexical,
		embedder:     embedder,
		aead:         aead,
		decay:        lifecycle.NewEngine(driver, decayCfg),
		consolidator: lifecycle.NewConsolidator(driver, summarizer, consolidationCfg),
		agents:       make(map[string]struct{}),
		cfg:          cfg,
	}

	// Background lifecycle tasks are spawned by the constructor and stopped
	// by shutdown (spec.md §5, §9).
	if cfg.Lifecycle.Enabled && cfg.Lifecycle.SweepIntervalSeconds > 0 {
		interval := time.Duration(cfg.Lifecycle.SweepIntervalSeconds) * time.Second
		e.sweeper = newScheduler(interval)
		e.sweeper.start(e.runSweep)
	}

	return e, nil
}

func vectorIndexPath(dir string) string   { return filepath.Join(dir, "vectors.json") }
func fullTextIndexPath(dir string) string { return filepath.Join(dir, "fulltext.json") }

// initStorage selects the primary core.Driver implementation by provider
// name. The oceanbase provider is the cold-storage tier rather than a
// primary driver; when selected, the engine falls back to a sqlite primary
// store (db_path from the same config map, default ./mnemo.db) and wires
// oceanbase, configured from that map's host/port/user/password/db_name,
// purely for Archive/Retrieve/ListArchived. Any provider may also attach
// the archive tier through a nested "archive" map.
func initStorage(cfg *core.StorageConfig) (core.Driver, archiveTier, error) {
	var (
		driver  core.Driver
		archive archiveTier
		err     error
	)

	switch cfg.Provider {
	case "sqlite":
		driver, err = sqlite.NewClient(&sqlite.Config{
			DBPath: stringField(cfg.Config, "db_path", "./mnemo.db"),
		})
	case "postgres":
		driver, err = postgres.NewClient(&postgres.Config{
			Host:     stringField(cfg.Config, "host", "localhost"),
			Port:     intField(cfg.Config, "port", 5432),
			User:     stringField(cfg.Config, "user", "postgres"),
			Password: stringField(cfg.Config, "password", ""),
			DBName:   stringField(cfg.Config, "db_name", "mnemo"),
			SSLMode:  stringField(cfg.Config, "ssl_mode", "disable"),
		})
	case "oceanbase":
		driver, err = sqlite.NewClient(&sqlite.Config{
			DBPath: stringField(cfg.Config, "db_path", "./mnemo.db"),
		})
		if err == nil {
			archive, err = oceanbase.NewClient(&oceanbase.Config{
				Host:     stringField(cfg.Config, "host", "127.0.0.1"),
				Port:     intField(cfg.Config, "port", 2881),
				User:     stringField(cfg.Config, "user", "root@sys"),
				Password: stringField(cfg.Config, "password", ""),
				DBName:   stringField(cfg.Config, "db_name", "mnemo_archive"),
			})
		}
	default:
		return nil, nil, core.NewEngineError("initStorage", core.KindValidation,
			fmt.Errorf("unknown storage provider %q", cfg.Provider))
	}
	if err != nil {
		return nil, nil, err
	}

	if archiveCfg, ok := cfg.Config["archive"].(map[string]interface{}); ok {
		archive, err = oceanbase.NewClient(&oceanbase.Config{
			Host:     stringField(archiveCfg, "host", "127.0.0.1"),
			Port:     intField(archiveCfg, "port", 2881),
			User:     stringField(archiveCfg, "user", "root@sys"),
			Password: stringField(archiveCfg, "password", ""),
			DBName:   stringField(archiveCfg, "db_name", "mnemo_archive"),
		})
		if err != nil {
			return nil, nil, err
		}
	}

	return driver, archive, nil
}

// initEmbedding selects the embedding.Provider implementation by provider
// name.
func initEmbedding(cfg *core.EmbeddingConfig) (embedding.Provider, error) {
	switch cfg.Provider {
	case "openai":
		return openaiembed.NewClient(&openaiembed.Config{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			BaseURL:    cfg.BaseURL,
			Dimensions: cfg.Dimensions,
		})
	case "noop", "":
		return noop.New(cfg.Dimensions), nil
	default:
		return nil, core.NewEngineError("initEmbedding", core.KindValidation,
			fmt.Errorf("unknown embedding provider %q", cfg.Provider))
	}
}

// initSummarizer selects the llm.Provider implementation used to back
// consolidation summaries by provider name. llm.Client speaks both wire
// formats seen across the supported providers (openai, deepseek, qwen,
// ollama, anthropic); the provider name only selects which one and its
// defaults.
func initSummarizer(cfg *core.SummarizerConfig) (llm.Provider, error) {
	return llm.NewClient(&llm.Config{
		Provider: cfg.Provider,
		APIKey:   cfg.APIKey,
		Model:    cfg.Model,
		BaseURL:  cfg.BaseURL,
	})
}

// Close stops the background sweeper, persists the in-process indices when
// cfg.IndexDir is configured, and releases the engine's storage and
// embedding resources (spec.md §5 graceful shutdown, §9 background task
// lifecycle).
func (e *Engine) Close() error {
	if e.sweeper != nil {
		e.sweeper.stop()
	}

	var firstErr error
	if e.cfg.IndexDir != "" {
		if err := e.vectors.Save(vectorIndexPath(e.cfg.IndexDir)); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := e.lexical.Save(fullTextIndexPath(e.cfg.IndexDir)); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if e.archive != nil {
		if err := e.archive.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := e.embedder.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := e.driver.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// runSweep is the body of the background lifecycle task: a decay +
// consolidation pass per known agent, then one global TTL cleanup (spec.md
// §5's "lifecycle decay and consolidation passes run on a single background
// task"). Failures are swallowed per agent rather than aborting the sweep —
// consistent with the core's no-logging-internally convention (SPEC_FULL.md
// §4.E3); a failed pass is simply retried next interval.
func (e *Engine) runSweep(now time.Time) {
	ctx := context.Background()
	for _, agentID := range e.knownAgents() {
		_, _, _, _ = e.decay.RunDecayPass(ctx, agentID, now)
		_, _ = e.consolidator.Run(ctx, agentID, now)
	}
	_, _ = lifecycle.CleanupExpired(ctx, e.driver, now)
}

// ReconcileIndices cross-checks the vector and full-text index cardinality
// against storage and, on any divergence, rebuilds both indices from
// storage (spec.md §9 open question d: "implementations may choose to
// rebuild [...] and log a warning"). It is not run automatically on every
// startup; callers invoke it explicitly, e.g. once after NewEngine or from
// an admin surface, per the "rebuild on demand" decision recorded in
// DESIGN.md.
func (e *Engine) ReconcileIndices(ctx context.Context) error {
	const op = "ReconcileIndices"

	live, err := e.driver.ListMemories(ctx, core.MemoryFilter{ExcludeDeleted: true}, 0, 0)
	if err != nil {
		return core.NewEngineError(op, core.KindStorage, err)
	}
	surviving := make([]*core.MemoryRecord, 0, len(live))
	for _, m := range live {
		if m.ConsolidationState != core.StateForgotten {
			surviving = append(surviving, m)
		}
	}

	if len(surviving) == e.vectors.Len() && len(surviving) == e.lexical.Len() {
		return nil
	}

	for _, m := range surviving {
		content := m.Content
		if e.aead != nil {
			plain, decErr := e.aead.Decrypt([]byte(m.Content))
			if decErr != nil {
				// Ciphertext this engine cannot decrypt (wrong key, or the
				// record predates the current cipher) is left out of the
				// rebuild rather than indexed as ciphertext.
				continue
			}
			content = string(plain)
		}

		if len(m.Embedding) > 0 {
			_ = e.vectors.Add(m.ID, m.Embedding)
		} else if vec, embErr := e.embedder.Embed(ctx, content); embErr == nil {
			_ = e.vectors.Add(m.ID, vec)
		}
		_ = e.lexical.Add(m.ID, content)
	}
	return nil
}

func stringField(m map[string]interface{}, key, fallback string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func intField(m map[string]interface{}, key string, fallback int) int {
	switch v := m[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return fallback
	}
}
