package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/signal.viewer/internal/api"
	"github.com/banshee-data/signal.viewer/internal/config"
	"github.com/banshee-data/signal.viewer/internal/db"
	"github.com/banshee-data/signal.viewer/internal/fsutil"
	"github.com/banshee-data/signal.viewer/internal/monitoring"
	"github.com/banshee-data/signal.viewer/internal/version"
	"github.com/banshee-data/signal.viewer/internal/waveform"
)

var (
	listen      = flag.String("listen", ":8080", "Listen address")
	configPath  = flag.String("config", "", "Path to a JSON config file")
	dbPath      = flag.String("db", "viewer.db", "Upload journal database path (empty disables the journal)")
	logLevel    = flag.String("log-level", "", "Log level override: debug, info, warn or error")
	logFormat   = flag.String("log-format", monitoring.FormatText, "Log format: text or json")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

const shutdownTimeout = 5 * time.Second

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	if flag.NArg() > 0 {
		if flag.Arg(0) != "migrate" {
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", flag.Arg(0))
			os.Exit(2)
		}
		if err := db.RunMigrateCommand(flag.Args()[1:], *dbPath, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *listen == "" {
		fmt.Fprintln(os.Stderr, "Listen address is required")
		os.Exit(2)
	}

	cfg, err := config.LoadViewerConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	level := cfg.GetLogLevel()
	if *logLevel != "" {
		if !monitoring.ValidLevel(*logLevel) {
			fmt.Fprintf(os.Stderr, "invalid -log-level %q\n", *logLevel)
			os.Exit(2)
		}
		level = *logLevel
	}
	logger := monitoring.NewLogger(os.Stderr, monitoring.ParseLevel(level), *logFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *listen, *dbPath); err != nil {
		logger.Error("viewer stopped", "error", err)
		os.Exit(1)
	}
}

// run serves until ctx is cancelled. An empty journalPath disables the
// upload journal.
func run(ctx context.Context, cfg *config.ViewerConfig, logger *slog.Logger, addr, journalPath string) error {
	var journal *db.DB
	if journalPath != "" {
		var err error
		journal, err = db.NewDB(journalPath, db.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("failed to open upload journal: %w", err)
		}
		defer journal.Close()
		logger.Info("upload journal enabled", "path", journalPath)
	}

	handler, err := newHandler(cfg, journal, logger)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("listening", "addr", addr, "version", version.Version,
			"parse_failure_mode", cfg.GetParseFailureMode())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		wg.Wait()
		return fmt.Errorf("failed to start server: %w", err)
	}
	logger.Info("shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown error", "error", err)
		if err := server.Close(); err != nil {
			logger.Warn("HTTP server force close error", "error", err)
		}
	}

	wg.Wait()
	logger.Info("graceful shutdown complete")
	return nil
}

// newHandler wires the loader, the API server and, when journal is set, the
// admin debug routes.
func newHandler(cfg *config.ViewerConfig, journal *db.DB, logger *slog.Logger) (http.Handler, error) {
	loaderOpts := []waveform.LoaderOption{
		waveform.WithTempRoot(cfg.GetTempDir()),
		waveform.WithLogger(logger),
	}
	if cfg.DemoMode() {
		loaderOpts = append(loaderOpts, waveform.WithDemoFallback(nil))
		logger.Warn("demo mode: unreadable records are replaced by synthetic waveforms")
	}
	loader := waveform.NewLoader(fsutil.OSFileSystem{}, loaderOpts...)

	opts := []api.Option{api.WithLogger(logger)}
	if journal != nil {
		opts = append(opts, api.WithJournal(journal))
	}
	s, err := api.NewServer(cfg, loader, opts...)
	if err != nil {
		return nil, err
	}

	mux := s.ServeMux()
	if journal != nil {
		if err := journal.AttachAdminRoutes(mux); err != nil {
			return nil, err
		}
	}
	return api.LoggingMiddleware(logger, mux), nil
}
