// Command orchestratord is the daemon's entry point: it wires every
// component the Supervisor (C11) owns and runs until a shutdown
// signal arrives. Grounded on services/gateway/main.go's explicit
// wiring order (config → logger → dependencies → long-running tasks →
// signal-driven graceful shutdown).
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/AlfredDev/orchestratord/internal/aggregator"
	"github.com/AlfredDev/orchestratord/internal/config"
	"github.com/AlfredDev/orchestratord/internal/controlplane"
	"github.com/AlfredDev/orchestratord/internal/knowledge"
	"github.com/AlfredDev/orchestratord/internal/knowledge/embed"
	"github.com/AlfredDev/orchestratord/internal/logging"
	"github.com/AlfredDev/orchestratord/internal/logparser"
	"github.com/AlfredDev/orchestratord/internal/persistence"
	"github.com/AlfredDev/orchestratord/internal/persistence/sqlitestore"
	"github.com/AlfredDev/orchestratord/internal/pricing"
	"github.com/AlfredDev/orchestratord/internal/querycache"
	"github.com/AlfredDev/orchestratord/internal/settings"
	"github.com/AlfredDev/orchestratord/internal/supervisor"
	"github.com/AlfredDev/orchestratord/internal/tailer"
)

// version is stamped at build time via -ldflags; "dev" is the
// fallback for a plain `go build`.
var version = "dev"

func main() {
	cfg := config.Load()
	logger := logging.New(cfg)
	logger.Info().Str("env", cfg.Env).Str("version", version).Msg("orchestratord starting")

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Fatal().Err(err).Msg("failed to create data directory")
	}

	store, err := sqlitestore.Open(cfg.DBPath, 4)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open database")
	}
	defer store.Close()

	pricingEngine := pricing.NewEngine()
	if entries, err := store.LoadPricing(); err != nil {
		logger.Warn().Err(err).Msg("failed to load persisted pricing table, using built-in rates")
	} else if len(entries) > 0 {
		pricingEngine.Refresh(entries)
	}

	agg := aggregator.New(100)
	parser := logparser.New(pricingEngine)

	fallback := persistence.NewFileFallback(cfg.DataDir + "/fallback.ndjson")
	batcher := persistence.NewBatcher(store, fallback, cfg.BatchSize, cfg.FlushInterval, logger)

	tail := tailer.New(cfg.WatchRoots, cfg.DebounceWindow, cfg.IngestChanCap, store, logger)

	sweeper := persistence.NewSweeper(store, cfg.RetentionDays, cfg.RollupKeepDays, cfg.VacuumThreshold, 24*time.Hour, logger)

	knowledgeEngine := knowledge.New(store, embed.New(cfg.EmbeddingCacheSize))

	settingsEmitter, err := settings.New(cfg.TempDirOverride, cfg.UserNameOverride)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to initialize settings emitter, continuing without it")
		settingsEmitter = nil
	}

	sup := supervisor.New(logger, cfg.MaxRestartsPerMinute, func() {
		if settingsEmitter != nil {
			settingsEmitter.Stop()
		}
		logger.Info().Msg("shutdown sequence complete")
	})

	deps := controlplane.Deps{
		Aggregator:  agg,
		Knowledge:   knowledgeEngine,
		StatsCache:  querycache.New(cfg.StatsCacheTTL),
		Version:     version,
		StartedAt:   time.Now(),
		Port:        portFromAddr(cfg.Addr),
		Degraded:    sup.Degraded(),
		MaxSSEConns: cfg.MaxSSESubscribers,
		SSEInterval: cfg.SSEInterval,
		TailerLag:   tail.Lag,
	}
	router := controlplane.NewRouter(cfg, logger, deps)
	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	workers := runtime.GOMAXPROCS(0)

	tasks := []supervisor.Task{
		{Name: "tailer", Restartable: true, Run: tail.Run},
		{Name: "aggregator", Run: func(ctx context.Context) error {
			agg.Run(ctx)
			return nil
		}},
		{Name: "parser_pool", Restartable: true, Run: func(ctx context.Context) error {
			return supervisor.RunParserPool(ctx, tail.Out(), parser, agg, batcher, workers, logger)
		}},
		{Name: "persistence_batcher", Run: func(ctx context.Context) error {
			batcher.Run(ctx)
			return nil
		}},
		{Name: "retention_sweeper", Run: func(ctx context.Context) error {
			sweeper.Run(ctx)
			return nil
		}},
		{Name: "control_plane", Run: func(ctx context.Context) error {
			return runHTTPServer(ctx, httpServer, logger, cfg.GracefulTimeout)
		}},
		{Name: "settings_emitter", Run: func(ctx context.Context) error {
			if settingsEmitter == nil {
				<-ctx.Done()
				return nil
			}
			apiURL := "http://" + cfg.Addr
			if err := settingsEmitter.Start(apiURL, map[string][]byte{
				settings.FileMain:   []byte(`{"version":"` + version + `"}`),
				settings.FileAgents: []byte(`{}`),
				settings.FileRules:  []byte(`{}`),
				settings.FileHooks:  []byte(`{}`),
			}); err != nil {
				logger.Warn().Err(err).Msg("settings emitter failed to write handoff files")
			}
			<-ctx.Done()
			return nil
		}},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().Str("addr", cfg.Addr).Msg("orchestratord listening")
	if err := sup.Run(ctx, tasks); err != nil {
		logger.Error().Err(err).Msg("supervisor exited with error")
		os.Exit(1)
	}
	logger.Info().Msg("orchestratord stopped gracefully")
}

// runHTTPServer starts srv and blocks until ctx is cancelled, then
// runs a bounded graceful shutdown — the same srv.ListenAndServe +
// signal-triggered srv.Shutdown(ctx) shape as the teacher's main.go,
// adapted from an OS-signal channel to the Supervisor's shared
// context.
func runHTTPServer(ctx context.Context, srv *http.Server, logger zerolog.Logger, gracefulTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("control plane graceful shutdown failed")
		return err
	}
	return nil
}

// portFromAddr extracts the numeric port from a "host:port" listen
// address for the /health payload; 0 if it cannot be parsed.
func portFromAddr(addr string) int {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return 0
	}
	port, err := strconv.Atoi(addr[idx+1:])
	if err != nil {
		return 0
	}
	return port
}
