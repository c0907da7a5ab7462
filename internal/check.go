package internal

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/starford/ansuz/internal/lint"
	"github.com/starford/ansuz/internal/mcpserver"
	"github.com/starford/ansuz/internal/postservice"
	"github.com/starford/ansuz/internal/registry"
	"github.com/starford/ansuz/internal/storage"
)

// openServices wires storage, registry, and the post service for the
// headless commands. The returned func closes the registry.
func openServices(cfg *Config) (*postservice.Service, func(), error) {
	store, err := storage.NewFS(cfg.Content.Dir)
	if err != nil {
		return nil, nil, fmt.Errorf("init storage: %w", err)
	}
	db, err := registry.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("init registry: %w", err)
	}
	svc := postservice.NewService(store, db, cfg.Site.BaseURL, cfg.Lint.StrictUpdated)
	return svc, func() { db.Close() }, nil
}

// Check runs the convention checks over the whole content tree. With record
// set and a clean run, every published identity is written to the ledger,
// freezing its permalink; the count of recorded identities is returned.
// A run with errors records nothing.
func Check(ctx context.Context, cfg *Config, record bool) (*lint.Report, int, error) {
	svc, closeFn, err := openServices(cfg)
	if err != nil {
		return nil, 0, err
	}
	defer closeFn()

	report, err := svc.LintReport(ctx)
	if err != nil {
		return nil, 0, err
	}

	recorded := 0
	if record && report.Clean() {
		recorded, err = svc.RecordPublished(ctx)
		if err != nil {
			return nil, 0, err
		}
	}
	return report, recorded, nil
}

// NewPost scaffolds a draft post on disk and indexes it.
func NewPost(ctx context.Context, cfg *Config, req postservice.DraftRequest) (*postservice.PostDetail, error) {
	if err := os.MkdirAll(cfg.Content.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create content dir: %w", err)
	}
	svc, closeFn, err := openServices(cfg)
	if err != nil {
		return nil, err
	}
	defer closeFn()
	return svc.CreatePost(ctx, req)
}

// ServeMCP runs the MCP server on stdin/stdout until the client hangs up.
// Logs go to stderr; stdout belongs to the protocol.
func ServeMCP(cfg *Config) error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	if err := os.MkdirAll(cfg.Content.Dir, 0o755); err != nil {
		return fmt.Errorf("create content dir: %w", err)
	}
	svc, closeFn, err := openServices(cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	return mcpserver.New(svc, cfg.Content.AssetsDir).ServeStdio()
}
