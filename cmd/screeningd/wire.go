package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"screener/internal/cache"
	"screener/internal/decision"
	decisionmetrics "screener/internal/decision/metrics"
	"screener/internal/domain"
	"screener/internal/filter"
	"screener/internal/matcher"
	"screener/internal/normalize"
	"screener/internal/platform/config"
	"screener/internal/platform/httpserver"
	platformmetrics "screener/internal/platform/metrics"
	"screener/internal/platform/redis"
	"screener/internal/screening"
	screeningmetrics "screener/internal/screening/metrics"
	"screener/internal/screening/ports"
	"screener/internal/snapshot"
	"screener/pkg/platform/audit"
	"screener/pkg/platform/audit/publisher"
	"screener/pkg/platform/audit/publishers/compliance"
	"screener/pkg/platform/audit/publishers/ops"
	auditkafka "screener/pkg/platform/audit/store/kafka"
	"screener/pkg/platform/audit/store/memory"
	auditpostgres "screener/pkg/platform/audit/store/postgres"
	"screener/pkg/platform/circuit"
)

// app holds the wired daemon. Closers run in reverse order on shutdown.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	service  *screening.Service
	store    *snapshot.Store
	loader   *snapshot.Loader
	reloader *snapshot.Reloader
	checks   []httpserver.Check
	closers  []func() error
}

func (a *app) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func build(ctx context.Context, cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	normalizer := normalize.New(
		normalize.WithVersion(cfg.Normalization.Version),
		normalize.WithMinLength(cfg.Normalization.MinLength),
		normalize.WithExtraHonorifics(cfg.Normalization.ExtraHonorifics...),
	)
	m, err := matcher.New(cfg.Matching.Options())
	if err != nil {
		return nil, err
	}
	engine, err := decision.NewEngine(cfg.Decision,
		decision.WithMetrics(decisionmetrics.NewWith(reg)),
		decision.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	sink, err := a.openAuditSink(ctx)
	if err != nil {
		return nil, err
	}
	auditor := compliance.New(sink,
		compliance.WithLogger(logger),
		compliance.WithMetrics(compliance.NewMetrics(reg)),
	)
	opsTracker := ops.New(sink,
		ops.WithLogger(logger),
		ops.WithMetrics(ops.NewMetrics(reg)),
		ops.WithSampler(ops.NewSampler(cfg.Audit.OpsSampleRate)),
	)

	// Swap events are emitted from the store's hook, which cannot fail a swap,
	// so they go through the buffered publisher.
	swapAudit := publisher.NewPublisher(sink,
		publisher.WithAsyncBuffer(cfg.Audit.AsyncBuffer),
		publisher.WithLogger(logger),
	)
	a.onClose(swapAudit.Close)

	snapMetrics := platformmetrics.NewWith(reg)
	a.store = snapshot.NewStore(
		snapshot.WithLogger(logger),
		snapshot.WithSwapHook(snapMetrics.ObserveSnapshot),
		snapshot.WithSwapHook(swapAuditHook(swapAudit, normalizer.Version(), logger)),
	)

	builder, err := snapshot.NewBuilder(normalizer, snapshot.WithBuilderLogger(logger))
	if err != nil {
		return nil, err
	}
	source, err := a.openSnapshotSource(ctx)
	if err != nil {
		return nil, err
	}
	a.loader = snapshot.NewLoader(source, builder, a.store, logger)
	if fs, ok := source.(*snapshot.FileSource); ok && cfg.Snapshot.Watch {
		a.reloader, err = snapshot.NewReloader(fs.Path(), a.loader, logger, cfg.Snapshot.Debounce)
		if err != nil {
			return nil, err
		}
	}

	opts := []screening.Option{
		screening.WithLogger(logger),
		screening.WithMetrics(screeningmetrics.NewWith(reg)),
		screening.WithAuditor(auditor),
		screening.WithOpsAuditor(opsTracker),
		screening.WithBatchConcurrency(cfg.Matching.BatchConcurrency),
	}
	candidates, err := a.openCache(ctx)
	if err != nil {
		return nil, err
	}
	if candidates != nil {
		opts = append(opts, screening.WithCandidateCache(candidates))
	}
	if cfg.Filter.Enabled {
		f, err := filter.New(cfg.Filter.Options)
		if err != nil {
			return nil, err
		}
		opts = append(opts, screening.WithCandidateFilter(f))
	}

	a.service, err = screening.New(normalizer, a.store, m, engine, opts...)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func swapAuditHook(p *publisher.Publisher, normVersion string, logger *slog.Logger) snapshot.SwapHook {
	return func(prev, next *domain.Snapshot) {
		reason := "initial load"
		if prev != nil {
			reason = fmt.Sprintf("replaced version %d", prev.Version())
		}
		version := next.NormalizationVersion()
		if version == "" {
			version = normVersion
		} else if version != normVersion {
			logger.Warn("snapshot normalized under a different version; its aliases will not be scored",
				"snapshot_version", next.Version(), "snapshot_normalization", version, "query_normalization", normVersion)
		}
		err := p.Emit(context.Background(), audit.Event{
			Action:               string(audit.EventSnapshotSwapped),
			NormalizationVersion: version,
			SnapshotVersion:      next.Version(),
			Reason:               reason,
		})
		if err != nil {
			logger.Error("snapshot swap audit dropped", "snapshot_version", next.Version(), "error", err)
		}
	}
}

func (a *app) openAuditSink(ctx context.Context) (audit.Store, error) {
	switch a.cfg.Audit.Sink {
	case "postgres":
		db, err := sql.Open("postgres", a.cfg.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("open audit database: %w", err)
		}
		a.onClose(db.Close)
		store := auditpostgres.New(db)
		if err := store.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate audit schema: %w", err)
		}
		a.checks = append(a.checks, httpserver.Check{Name: "audit_postgres", Ping: db.PingContext})
		return store, nil
	case "kafka":
		store, err := auditkafka.New(a.cfg.Kafka.Brokers, a.cfg.Kafka.Topic)
		if err != nil {
			return nil, err
		}
		a.onClose(func() error { store.Close(); return nil })
		if err := store.EnsureTopic(ctx, a.cfg.Kafka.Partitions, a.cfg.Kafka.Replication); err != nil {
			return nil, err
		}
		a.checks = append(a.checks, httpserver.Check{Name: "audit_kafka", Ping: store.Ping})
		return store, nil
	default:
		a.logger.Warn("audit events are kept in memory only")
		return memory.NewInMemoryStore(), nil
	}
}

func (a *app) openSnapshotSource(ctx context.Context) (snapshot.Source, error) {
	if a.cfg.Snapshot.Source != "postgres" {
		return snapshot.NewFileSource(a.cfg.Snapshot.Path), nil
	}
	pool, err := pgxpool.New(ctx, a.cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect snapshot database: %w", err)
	}
	a.onClose(func() error { pool.Close(); return nil })
	a.checks = append(a.checks, httpserver.Check{Name: "snapshot_postgres", Ping: pool.Ping})
	return snapshot.NewPostgresSource(pool), nil
}

func (a *app) openCache(ctx context.Context) (ports.CandidateCache, error) {
	switch a.cfg.Cache.Backend {
	case "memory":
		return cache.NewMemoryCache(
			cache.WithCapacity(a.cfg.Cache.Capacity),
			cache.WithTTL(a.cfg.Cache.TTL),
		), nil
	case "redis":
		client, err := redis.New(ctx, a.cfg.Redis)
		if err != nil {
			return nil, err
		}
		a.onClose(client.Close)
		a.checks = append(a.checks, httpserver.Check{Name: "cache_redis", Ping: client.Health})
		return cache.NewRedisCache(client,
			cache.WithRedisTTL(a.cfg.Cache.TTL),
			cache.WithRedisLogger(a.logger),
			cache.WithBreaker(circuit.New("candidate-cache")),
		), nil
	default:
		return nil, nil
	}
}
