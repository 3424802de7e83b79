// Package cleanup はトークン台帳の定期削除ジョブを提供する。
// 無効化済みのレコードと、保持期間を超過したレコードを削除する。
// 保持期間はトークンの有効期間より十分長く設定するため、削除対象が有効なトークンであることはない。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/estatehub/internal/metrics"
)

// DefaultRetentionDays はトークン台帳の既定の保持日数。
const DefaultRetentionDays = 7

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// CleanupJob はトークン台帳のクリーンアップジョブ。冪等に実行できる。
type CleanupJob struct {
	db            Executor
	logger        *slog.Logger
	metrics       metrics.MetricsCollector
	RetentionDays int // トークン台帳の保持日数（デフォルト: 7）
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(db Executor, logger *slog.Logger, m metrics.MetricsCollector) *CleanupJob {
	if m == nil {
		m = metrics.Nop{}
	}
	return &CleanupJob{
		db:            db,
		logger:        logger,
		metrics:       m,
		RetentionDays: DefaultRetentionDays,
	}
}

// Run は無効化済み、または保持期間を超過したトークン台帳のレコードを削除する。
// 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	interval := fmt.Sprintf("%d days", j.RetentionDays)

	query := `DELETE FROM tokens WHERE is_valid = false OR created_at < now() - $1::interval`
	result, err := j.db.ExecContext(ctx, query, interval)
	if err != nil {
		j.logger.Error("トークン台帳のクリーンアップに失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("トークン台帳のクリーンアップに失敗: %w", err)
	}

	deletedCount, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("削除件数の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("削除件数の取得に失敗: %w", err)
	}
	j.metrics.RecordTokensCleaned(deletedCount)

	duration := time.Since(start)
	j.logger.Info("トークン台帳のクリーンアップが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// Start は起動直後に1回実行し、以降intervalごとにRunを実行する。
// ctxがキャンセルされると戻る。実行時のエラーはログに記録して継続する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	j.runOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *CleanupJob) runOnce(ctx context.Context) {
	if err := j.Run(ctx); err != nil && ctx.Err() == nil {
		j.logger.Warn("クリーンアップジョブは次回実行時に再試行します",
			slog.String("error", err.Error()),
		)
	}
}
