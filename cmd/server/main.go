// Package main is the entry point for the change intelligence service.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/opsgrid/changeintel/internal/audit"
	"github.com/opsgrid/changeintel/internal/changestore"
	"github.com/opsgrid/changeintel/internal/config"
	"github.com/opsgrid/changeintel/internal/database"
	"github.com/opsgrid/changeintel/internal/database/postgres"
	"github.com/opsgrid/changeintel/internal/graph"
	"github.com/opsgrid/changeintel/internal/history"
	"github.com/opsgrid/changeintel/internal/impact"
	"github.com/opsgrid/changeintel/internal/kpi"
	"github.com/opsgrid/changeintel/internal/lock"
	"github.com/opsgrid/changeintel/internal/obsmetrics"
	"github.com/opsgrid/changeintel/internal/policy"
	"github.com/opsgrid/changeintel/internal/risk"
	"github.com/opsgrid/changeintel/internal/syncengine"
	"github.com/opsgrid/changeintel/internal/workflow"
	"github.com/opsgrid/changeintel/pkg/metrics"
)

const serviceName = "changeintel"

func main() {
	var (
		configPath  = flag.String("config", "", "Path to a YAML config file (optional; env vars always apply)")
		showVersion = flag.Bool("version", false, "Show version information")
		showHelp    = flag.Bool("help", false, "Show help information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s version %s\n", serviceName, "0.1.0")
		os.Exit(0)
	}

	if *showHelp {
		fmt.Printf("Change Intelligence Engine\n\n")
		fmt.Printf("Usage: %s [options]\n\n", os.Args[0])
		fmt.Printf("Options:\n")
		fmt.Printf("  -config     Path to a YAML config file\n")
		fmt.Printf("  -version    Show version information\n")
		fmt.Printf("  -help       Show this help message\n\n")
		os.Exit(0)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	if cfg.IsDebug() {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	logger.Info("starting change intelligence engine",
		"service", cfg.App.Name,
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool := connectDatabase(ctx, cfg, logger)
	defer pool.Disconnect(context.Background())

	redisClient := connectRedis(cfg)
	defer redisClient.Close()

	registry := obsmetrics.DefaultRegistry()

	graphStore := graph.NewPostgresStore(pool)
	changeStore := changestore.NewPostgresStore(pool)
	journal := audit.NewPostgresJournal(pool)
	policyStore := policy.NewPostgresStore(pool)
	approvalStore := workflow.NewPostgresApprovalStore(pool)
	historyProvider := history.New(changeStore)

	impactCfg := impact.DefaultConfig()
	impactCfg.DefaultMaxDepth = cfg.Impact.MaxTraversalDepth
	impactCfg.CacheSize = cfg.Impact.SnapshotCacheSize
	analyzer, err := impact.New(graphStore, impactCfg, logger, registry.Impact())
	if err != nil {
		logger.Error("failed to build impact analyzer", "error", err)
		os.Exit(1)
	}

	riskEngine := risk.New(risk.Config{
		Weights: risk.Weights{
			ProdEnvironment:               cfg.Risk.ProdEnvironment,
			CoreDeviceTouched:             cfg.Risk.CoreDeviceTouched,
			HighDependencyCount:           cfg.Risk.HighDependencyCount,
			HighDependencyThreshold:       cfg.Risk.HighDependencyThreshold,
			NoRollbackPlan:                cfg.Risk.NoRollbackPlan,
			OutsideMaintenanceWindow:      cfg.Risk.OutsideMaintenanceWindow,
			PriorIncidentWithin90Days:     cfg.Risk.PriorIncidentWithin90Days,
			CriticalApplicationAffected:   cfg.Risk.CriticalApplicationAffected,
			CriticalApplicationCap:        cfg.Risk.CriticalApplicationCap,
			AnyAnyRule:                    cfg.Risk.AnyAnyRule,
			RedundancyDiscount:            cfg.Risk.RedundancyDiscount,
			LowCriticalityAddRuleDiscount: cfg.Risk.LowCriticalityAddRuleDiscount,
		},
		MinScore: cfg.Risk.MinScore,
		MaxScore: cfg.Risk.MaxScore,
		Bands: risk.LevelBands{
			LowMax:    cfg.Risk.LowMax,
			MediumMax: cfg.Risk.MediumMax,
			HighMax:   cfg.Risk.HighMax,
		},
	})

	policyEngine := policy.New(policyStore, logger)

	lockCfg := lock.DefaultConfig()
	lockManager := lock.NewManager(redisClient, lockCfg, logger)
	defer lockManager.Close(context.Background())

	controller := workflow.New(
		changeStore,
		approvalStore,
		analyzer,
		riskEngine,
		policyEngine,
		journal,
		graphStore,
		lockManager,
		historyProvider,
		registry.Controller(),
		logger,
		workflow.Config{
			ApprovalTimeout:       cfg.Workflow.ApprovalTimeout,
			ApprovalRateThreshold: cfg.Workflow.ApprovalRateThreshold,
		},
	)

	coordinator := syncengine.New(graphStore, journal, registry.Sync(), logger, syncengine.Config{
		WorkerPoolWidth:  cfg.Sync.WorkerPoolWidth,
		JobTimeout:       cfg.Sync.JobTimeout,
		RetryMax:         cfg.Sync.RetryMax,
		RetryBaseSeconds: cfg.Sync.RetryBaseSeconds,
		RetryCapSeconds:  cfg.Sync.RetryCapSeconds,
		CoreDeviceK:      cfg.Sync.CoreDeviceK,
	})
	defer coordinator.Stop()

	controller.StartApprovalReaper(ctx, cfg.Workflow.ReaperInterval)
	defer controller.Stop()

	coordinator.StartPeriodic(ctx, cfg.Sync.PeriodicInterval)

	if cfg.Metrics.Enabled {
		aggregator := kpi.New(changeStore, approvalStore, journal, graphStore)
		startKPIRollup(ctx, aggregator, registry.KPI(), cfg.Metrics.RollupInterval, cfg.Metrics.RollupWindow, logger)
	}

	server := buildOpsServer(cfg, pool)

	go func() {
		logger.Info("ops HTTP surface starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("ops HTTP surface failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited")
}

func connectDatabase(ctx context.Context, cfg *config.Config, logger *slog.Logger) *postgres.PostgresPool {
	dbCfg := &postgres.PostgresConfig{
		Host:              cfg.Database.Host,
		Port:              cfg.Database.Port,
		Database:          cfg.Database.Database,
		User:              cfg.Database.Username,
		Password:          cfg.Database.Password,
		SSLMode:           cfg.Database.SSLMode,
		MaxConns:          int32(cfg.Database.MaxConnections),
		MinConns:          int32(cfg.Database.MinConnections),
		MaxConnLifetime:   cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:   cfg.Database.MaxConnIdleTime,
		HealthCheckPeriod: 30 * time.Second,
		ConnectTimeout:    cfg.Database.ConnectTimeout,
	}

	pool := postgres.NewPostgresPool(dbCfg, logger)
	if err := pool.Connect(ctx); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to postgres", "host", cfg.Database.Host, "database", cfg.Database.Database)

	if err := database.RunMigrations(ctx, pool, logger); err != nil {
		logger.Error("failed to run database migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations completed successfully")

	return pool
}

func connectRedis(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
		MaxRetries:   cfg.Redis.MaxRetries,
	})
}

// startKPIRollup runs the metrics roll-up on a fixed interval until ctx is
// cancelled, publishing each report to the kpi gauges.
func startKPIRollup(ctx context.Context, aggregator *kpi.Aggregator, metrics *obsmetrics.KPIMetrics, interval, window time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				report, err := aggregator.Compute(ctx, time.Now(), window)
				if err != nil {
					logger.Error("kpi rollup failed", "error", err)
					continue
				}
				metrics.Observe(
					report.TotalChanges,
					report.AutoApprovedPct,
					report.AvgValidationMinutes,
					report.IncidentsPostChangePct,
					report.ScoringPrecisionPct,
					report.CoreChangesDetectedPct,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func buildOpsServer(cfg *config.Config, pool *postgres.PostgresPool) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Health(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, "unhealthy: %v", err)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	var handler http.Handler = mux
	if cfg.Metrics.Enabled {
		mux.Handle(cfg.Metrics.Path, promhttp.Handler())
		handler = metrics.NewHTTPMetrics().Middleware(mux)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}
