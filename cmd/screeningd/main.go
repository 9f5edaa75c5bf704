// Command screeningd keeps a reference snapshot current and serves the ops
// endpoints for the screening core. With -batch it screens a file of names
// against the loaded snapshot and exits.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"screener/internal/domain"
	"screener/internal/platform/config"
	"screener/internal/platform/httpserver"
	"screener/internal/platform/logger"
	"screener/internal/screening"
	"screener/pkg/requestcontext"
)

func main() {
	configPath := flag.String("config", envOr("SCREENER_CONFIG", config.DefaultPath), "path to the YAML config file")
	batchPath := flag.String("batch", "", "screen the names in this file, one per line, and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "screeningd: %v\n", err)
		os.Exit(2)
	}
	log := logger.New(cfg.Log)

	if err := run(cfg, log, *batchPath); err != nil {
		log.Error("screeningd stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger, batchPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := build(ctx, cfg, log, prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("startup: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("shutdown cleanup failed", "error", err)
		}
	}()

	fingerprint, err := cfg.Fingerprint()
	if err != nil {
		return err
	}
	log.InfoContext(ctx, "screener configured",
		"config_fingerprint", fingerprint,
		"snapshot_source", cfg.Snapshot.Source,
		"cache", cfg.Cache.Backend,
		"audit_sink", cfg.Audit.Sink,
	)

	if _, _, err := a.loader.Refresh(ctx); err != nil {
		// Screening reports SnapshotUnavailable until a later refresh succeeds.
		log.ErrorContext(ctx, "initial snapshot load failed", "error", err)
	}

	if batchPath != "" {
		return runBatch(ctx, a, batchPath, os.Stdout)
	}
	return serve(ctx, a)
}

func serve(ctx context.Context, a *app) error {
	srv := httpserver.New(a.cfg.Server.Addr, httpserver.Router(a.store, prometheus.DefaultGatherer, a.checks...))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.InfoContext(gctx, "starting ops server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ops server: %w", err)
		}
		return nil
	})
	if a.reloader != nil {
		g.Go(func() error { return a.reloader.Run(gctx) })
	}
	if a.cfg.Snapshot.Source == "postgres" {
		g.Go(func() error { return a.loader.Poll(gctx, a.cfg.Snapshot.PollInterval) })
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down ops server")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

type batchLine struct {
	Index    int              `json:"index"`
	Query    string           `json:"query"`
	Decision *domain.Decision `json:"decision,omitempty"`
	Error    string           `json:"error,omitempty"`
}

func runBatch(ctx context.Context, a *app, path string, out io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open batch file: %w", err)
	}
	defer f.Close()

	var names []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			names = append(names, line)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read batch file: %w", err)
	}

	ctx = requestcontext.WithRequestID(ctx, "batch:"+path)
	results, err := a.service.ScreenBatch(ctx, names)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	for _, r := range results {
		line := batchLine{Index: r.Index, Query: r.Query, Decision: r.Decision}
		if r.Err != nil {
			line.Error = r.Err.Error()
		}
		if err := enc.Encode(line); err != nil {
			return err
		}
	}
	a.logger.InfoContext(ctx, "batch screened", "summary", screening.Summarize(results))
	return nil
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
