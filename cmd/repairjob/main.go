package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/adhocore/gronx"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"social-consistency/checker"
	"social-consistency/config"
	"social-consistency/engagement"
	"social-consistency/retry"
	"social-consistency/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("failed to load repair job .env")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load repair job config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	if !gronx.IsValid(cfg.RepairCron) {
		logger.Fatal("invalid repair cron expression", zap.String("cron", cfg.RepairCron))
	}

	db, err := store.ConnectPostgres(cfg.Database.DSN(),
		cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.MaxLifetime)
	if err != nil {
		logger.Fatal("failed to connect to document store", zap.Error(err))
	}
	defer db.Close()

	docs := store.NewPostgresStore(db)
	if err := docs.EnsureSchema(context.Background()); err != nil {
		logger.Fatal("failed to ensure schema", zap.Error(err))
	}

	policy := retry.Policy{Attempts: cfg.RetryAttempts, BaseDelay: cfg.RetryBaseDelay}

	chk := checker.NewChecker(docs, logger)
	chk.ViewWindow = cfg.ViewDedupWindow

	eng := engagement.NewEngine(docs, policy, logger)
	eng.DedupWindow = cfg.ViewDedupWindow

	// Prometheus endpoint; the conflict/compensation/mismatch counters are
	// the observable bound on the cross-document staleness window.
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info("metrics listening", zap.String("addr", cfg.MetricsAddr))
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		logger.Info("repair job shutting down gracefully")
		cancel()
	}()

	logger.Info("repair job started",
		zap.String("cron", cfg.RepairCron),
		zap.Bool("repair_enabled", cfg.RepairEnabled))

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	gron := gronx.New()
	for {
		select {
		case <-ctx.Done():
			logger.Info("repair job stopped")
			return
		case <-ticker.C:
			due, err := gron.IsDue(cfg.RepairCron, time.Now())
			if err != nil || !due {
				continue
			}
			runPass(ctx, logger, cfg, docs, chk, eng)
		}
	}
}

// runPass sweeps every actor and content document once: checks (optionally
// repairs) derived state, then prunes view logs past retention.
func runPass(ctx context.Context, logger *zap.Logger, cfg *config.Config, docs *store.PostgresStore, chk *checker.Checker, eng *engagement.Engine) {
	started := time.Now()

	var keys []string
	for _, prefix := range []string{"actor:", "content:"} {
		prefixKeys, err := docs.Keys(ctx, prefix)
		if err != nil {
			logger.Error("failed to list documents", zap.String("prefix", prefix), zap.Error(err))
			return
		}
		keys = append(keys, prefixKeys...)
	}

	report, err := chk.Sweep(ctx, keys, cfg.RepairEnabled)
	if err != nil {
		logger.Error("sweep failed", zap.Error(err))
		return
	}

	retention := time.Duration(cfg.ViewRetentionDays) * 24 * time.Hour
	pruned := 0
	for _, key := range keys {
		id, ok := contentID(key)
		if !ok {
			continue
		}
		removed, err := eng.CleanupOldViews(ctx, id, retention)
		if err != nil {
			logger.Warn("view log cleanup failed", zap.String("key", key), zap.Error(err))
			continue
		}
		pruned += removed
	}

	logger.Info("repair pass finished",
		zap.Int("checked", report.Checked),
		zap.Int("dirty", report.Dirty),
		zap.Int("skipped", report.Skipped),
		zap.Int("views_pruned", pruned),
		zap.Duration("took", time.Since(started)))
	for _, m := range report.Mismatch {
		logger.Warn("discrepancy",
			zap.String("key", m.Key),
			zap.String("field", m.Field),
			zap.String("detail", m.Detail))
	}
}

func contentID(key string) (id uuid.UUID, ok bool) {
	const prefix = "content:"
	if !strings.HasPrefix(key, prefix) {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(strings.TrimPrefix(key, prefix))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
