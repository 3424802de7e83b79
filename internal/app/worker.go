package app

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hitoshi/estatehub/internal/config"
	"github.com/hitoshi/estatehub/internal/database"
	"github.com/hitoshi/estatehub/internal/metrics"
	"github.com/hitoshi/estatehub/internal/worker/cleanup"
)

// runWorker はワーカーモードで起動する。
// DB接続を開き、トークン台帳のクリーンアップジョブを定期実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	// ワーカーは/metricsを公開しないため計測しない
	job := newCleanupJob(cfg, db, metrics.Nop{})

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
		slog.Int("retention_days", job.RetentionDays),
	)

	// ctxがキャンセルされるまでブロックする
	job.Start(ctx, cfg.CleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runCleanupOnce はクリーンアップを1回実行して終了する。
func runCleanupOnce(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	return newCleanupJob(cfg, db, metrics.Nop{}).Run(ctx)
}

// newCleanupJob は設定の保持日数を反映したクリーンアップジョブを生成する。
func newCleanupJob(cfg *config.Config, db cleanup.Executor, m metrics.MetricsCollector) *cleanup.CleanupJob {
	job := cleanup.NewCleanupJob(db, slog.Default(), m)
	if cfg.TokenRetentionDays > 0 {
		job.RetentionDays = cfg.TokenRetentionDays
	}
	return job
}
