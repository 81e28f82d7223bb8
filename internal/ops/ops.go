package ops

import (
	"context"
	"database/sql"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/hpungsan/synapse/internal/auth"
	"github.com/hpungsan/synapse/internal/config"
	"github.com/hpungsan/synapse/internal/db"
	"github.com/hpungsan/synapse/internal/queue"
	"github.com/hpungsan/synapse/internal/remote"
	"github.com/hpungsan/synapse/internal/snapshot"
)

// Pagination limits
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
	MaxPreviewChars  = 200
)

// KeyAPIBase is the kv entry holding the user-set remote API base URL.
const KeyAPIBase = "api_base"

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// Runtime is the handle every operation runs against. One per process.
type Runtime struct {
	DB          *sql.DB
	Config      *config.Config
	BaseDir     string
	Snapshots   *snapshot.Store
	Queue       *queue.Queue
	Credentials *auth.StoredCredentials
	Syncer      *remote.Syncer
	Logger      *slog.Logger

	// Now is the clock used for scheduling; default time.Now.
	Now func() time.Time
}

// Options tweaks Open. The zero value is fine for production.
type Options struct {
	Logger *slog.Logger
	Now    func() time.Time
	Writer remote.Writer // default: HTTP client against the configured API base
}

// Open initializes the database under baseDir and wires every component.
func Open(baseDir string, cfg *config.Config, opts Options) (*Runtime, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	database, err := db.Init(baseDir)
	if err != nil {
		return nil, err
	}
	db.ConfigurePool(database, cfg)

	rt := &Runtime{
		DB:      database,
		Config:  cfg,
		BaseDir: baseDir,
		Logger:  opts.Logger,
		Now:     opts.Now,
	}

	rt.Snapshots = snapshot.New(database, snapshot.Options{Now: opts.Now, Logger: opts.Logger})
	rt.Queue = queue.New(database, queue.Options{
		Retry: queue.RetryPolicy{
			BaseBackoff: cfg.RetryBaseBackoff(),
			MaxBackoff:  cfg.RetryMaxBackoff(),
			MaxAttempts: cfg.RetryMaxAttempts,
		},
		Now:    opts.Now,
		Logger: opts.Logger,
	})
	rt.Credentials = auth.NewStoredCredentials(database)

	writer := opts.Writer
	if writer == nil {
		writer = remote.NewClient(rt.APIBase, nil)
	}
	rt.Syncer = remote.NewSyncer(rt.Credentials, writer, rt.Queue, remote.Options{
		RequestTimeout: cfg.RequestTimeout(),
		Now:            opts.Now,
		Logger:         opts.Logger,
	})

	return rt, nil
}

// Close releases the database.
func (rt *Runtime) Close() error {
	return rt.DB.Close()
}

// APIBase returns the stored API base URL, falling back to the config default.
func (rt *Runtime) APIBase(ctx context.Context) (string, error) {
	base, _, err := rt.apiBase(ctx)
	return base, err
}

func (rt *Runtime) apiBase(ctx context.Context) (string, bool, error) {
	stored, ok, err := db.GetValue(ctx, rt.DB, KeyAPIBase)
	if err != nil {
		return "", false, err
	}
	if ok && strings.TrimSpace(stored) != "" {
		return stored, true, nil
	}
	base := rt.Config.DefaultAPIBase
	if base == "" {
		base = config.DefaultAPIBase
	}
	return base, false, nil
}

// ExportsDir is the default export directory (<base>/exports).
func (rt *Runtime) ExportsDir() string {
	return filepath.Join(rt.BaseDir, "exports")
}

// remoteEnabled reports whether captures are queued for sync.
func (rt *Runtime) remoteEnabled() bool {
	return !rt.Config.DisableRemote
}
