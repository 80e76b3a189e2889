// Command loupe attaches a circular magnifier overlay to live web pages.
//
// Usage:
//
//	loupe -config loupe.yaml           # magnify pages from YAML config
//	loupe -url https://example.com     # quick single-page magnifier
//	loupe -db profiles.db              # magnify pages from SQLite profiles
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/loupe"
	"github.com/hazyhaar/loupe/internal/browser"
	"github.com/hazyhaar/loupe/internal/sink"
)

func main() {
	configPath := flag.String("config", "", "path to loupe.yaml config file")
	singleURL := flag.String("url", "", "magnify a single URL with default settings")
	dbPath := flag.String("db", "", "path to a SQLite database of magnifier profiles")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *singleURL, *dbPath); err != nil {
		logger.Error("loupe: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, singleURL, dbPath string) error {
	if singleURL != "" {
		cfg := &loupe.Config{Pages: []loupe.PageConfig{{ID: "page-1", URL: singleURL}}}
		cfg.ApplyDefaults()
		return runPages(ctx, logger, cfg)
	}

	if configPath != "" {
		cfg, err := loupe.LoadConfigFile(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		return runPages(ctx, logger, cfg)
	}

	if dbPath != "" {
		return runDB(ctx, logger, dbPath)
	}

	fmt.Fprintln(os.Stderr, "usage: loupe -config <file> | -url <url> | -db <file>")
	os.Exit(1)
	return nil
}

// runPages attaches one magnifier per configured page and blocks until
// the context is cancelled.
func runPages(ctx context.Context, logger *slog.Logger, cfg *loupe.Config) error {
	mgr := browser.NewManager(browser.Config{
		RemoteURL: cfg.Browser.Remote,
		Headless:  cfg.Browser.Headless,
		Stealth:   cfg.Browser.Stealth,
		Logger:    logger,
	})
	if _, err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	defer mgr.Close()

	var preview *sink.Preview
	if cfg.Preview.Listen != "" {
		preview = sink.NewPreview(cfg.Preview.Listen, logger)
		defer preview.Close()
		logger.Info("loupe: preview endpoint up", "addr", cfg.Preview.Listen)
	}

	var magnifiers []*loupe.Magnifier
	defer func() {
		for _, m := range magnifiers {
			m.Destroy()
		}
	}()

	for _, page := range cfg.Pages {
		m, err := attach(ctx, logger, mgr, preview, cfg.Browser.Stealth, cfg.Overlay, page)
		if err != nil {
			logger.Error("loupe: attach page failed", "url", page.URL, "error", err)
			continue
		}
		magnifiers = append(magnifiers, m)
	}
	if len(magnifiers) == 0 {
		return fmt.Errorf("no page could be magnified")
	}

	<-ctx.Done()
	return nil
}

// attach opens a tab for one page and starts a magnifier on it.
func attach(ctx context.Context, logger *slog.Logger, mgr *browser.Manager, preview *sink.Preview, stealth bool, overlay loupe.OverlayConfig, page loupe.PageConfig) (*loupe.Magnifier, error) {
	tab, err := browser.OpenTab(ctx, mgr, page.ID, page.URL, stealth)
	if err != nil {
		return nil, fmt.Errorf("open tab: %w", err)
	}
	host := browser.NewHost(tab, logger)

	sinks := []sink.Sink{browser.NewOverlaySink(host)}
	if preview != nil {
		sinks = append(sinks, sharedSink{preview})
	}

	m := loupe.New(overlay, logger, host, sinks...)
	if err := m.Start(ctx); err != nil {
		host.Close()
		return nil, fmt.Errorf("start magnifier: %w", err)
	}
	return m, nil
}

// runDB loads magnifier profiles from SQLite and runs them as pages.
func runDB(ctx context.Context, logger *slog.Logger, path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	if err := loupe.EnsureProfileSchema(ctx, db); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	profiles, err := loupe.LoadProfiles(ctx, db)
	if err != nil {
		return fmt.Errorf("load profiles: %w", err)
	}
	if len(profiles) == 0 {
		return fmt.Errorf("no active profiles in %s", path)
	}

	mgr := browser.NewManager(browser.Config{Logger: logger})
	if _, err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	defer mgr.Close()

	var magnifiers []*loupe.Magnifier
	defer func() {
		for _, m := range magnifiers {
			m.Destroy()
		}
	}()

	// Profiles carry per-page overlay settings; each page gets its own
	// magnifier on the shared browser.
	for _, p := range profiles {
		m, err := attach(ctx, logger, mgr, nil, false, p.Overlay, loupe.PageConfig{ID: p.ID, URL: p.URL})
		if err != nil {
			logger.Error("loupe: attach profile failed", "id", p.ID, "url", p.URL, "error", err)
			continue
		}
		magnifiers = append(magnifiers, m)
	}
	if len(magnifiers) == 0 {
		return fmt.Errorf("no profile could be magnified")
	}

	<-ctx.Done()
	return nil
}

// sharedSink wraps a sink owned by main, so per-magnifier routers do
// not close it.
type sharedSink struct {
	sink.Sink
}

func (sharedSink) Close() error { return nil }
