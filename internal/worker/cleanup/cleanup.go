// Package cleanup はレビュー済みFTMO提出の自動削除ジョブを提供する。
// 保持期間（デフォルト365日）を超過した提出を日次バッチで削除する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultRetentionDays はレビュー済み提出の保持日数の既定値。
const DefaultRetentionDays = 365

// SubmissionPurger はレビュー済み提出の削除を抽象化するインターフェース。
// repository.FTMORepositoryが満たす。
type SubmissionPurger interface {
	DeleteReviewedBefore(ctx context.Context, before time.Time) (int64, error)
}

// CleanupJob は保持期間を超過したレビュー済みFTMO提出の自動削除ジョブ。
// レビュー待ちの提出は対象外。冪等な削除処理を保証する。
type CleanupJob struct {
	purger        SubmissionPurger
	logger        *slog.Logger
	RetentionDays int // レビュー済み提出の保持日数（デフォルト: 365）
	now           func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
// retentionDaysが0以下の場合はDefaultRetentionDaysを使う。
func NewCleanupJob(purger SubmissionPurger, retentionDays int, logger *slog.Logger) *CleanupJob {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &CleanupJob{
		purger:        purger,
		logger:        logger,
		RetentionDays: retentionDays,
		now:           time.Now,
	}
}

// Run は保持期間を超過したレビュー済み提出を削除する。
// reviewedAtがRetentionDays日前より古い提出を削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()
	before := j.now().UTC().AddDate(0, 0, -j.RetentionDays)

	deletedCount, err := j.purger.DeleteReviewedBefore(ctx, before)
	if err != nil {
		j.logger.Error("FTMO提出クリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("FTMO提出クリーンアップの実行に失敗: %w", err)
	}

	j.logger.Info("FTMO提出クリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Int("retention_days", j.RetentionDays),
		slog.Time("reviewed_before", before),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return nil
}

// StartDaily は起動直後に1回、その後は24時間ごとにRunを実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *CleanupJob) StartDaily(ctx context.Context) {
	j.runLogged(ctx)

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.runLogged(ctx)
		}
	}
}

func (j *CleanupJob) runLogged(ctx context.Context) {
	if err := j.Run(ctx); err != nil {
		j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
	}
}
