// Package cleanup はページ閲覧数の定期リセットジョブを提供する。
// 永続化したペイウォールの閲覧数は、集計開始から期間（デフォルト30日）を
// 過ぎた記録を削除することで無料枠に戻す。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultWindow は閲覧数を保持する期間のデフォルト値。
const DefaultWindow = 30 * 24 * time.Hour

// PageViewResetter は期間を過ぎた閲覧数を削除する。
// repository.PageViewRepositoryが実装する。
type PageViewResetter interface {
	ResetOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupJob はページ閲覧数の期間リセットジョブ。
// 削除対象がない場合もエラーにならず、何度実行しても結果は変わらない。
type CleanupJob struct {
	views  PageViewResetter
	logger *slog.Logger
	now    func() time.Time
	Window time.Duration // 閲覧数の保持期間（デフォルト: 30日）
}

// NewCleanupJob は新しいCleanupJobを生成する。
// windowが0以下の場合はDefaultWindowを使用する。
func NewCleanupJob(views PageViewResetter, logger *slog.Logger, window time.Duration) *CleanupJob {
	if window <= 0 {
		window = DefaultWindow
	}
	return &CleanupJob{
		views:  views,
		logger: logger,
		now:    time.Now,
		Window: window,
	}
}

// Run は保持期間を過ぎた閲覧数を削除する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := j.now()
	cutoff := start.Add(-j.Window)

	deleted, err := j.views.ResetOlderThan(ctx, cutoff)
	if err != nil {
		j.logger.Error("ページ閲覧数のリセットに失敗しました",
			slog.String("error", err.Error()),
			slog.Duration("window", j.Window),
		)
		return fmt.Errorf("ページ閲覧数のリセットに失敗: %w", err)
	}

	j.logger.Info("ページ閲覧数のリセットが完了しました",
		slog.Int64("reset_count", deleted),
		slog.Time("cutoff", cutoff),
		slog.Float64("duration_ms", float64(j.now().Sub(start).Milliseconds())),
	)
	return nil
}

// Start はintervalごとにRunを実行する。起動直後に1回実行し、
// コンテキストがキャンセルされるまで継続する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("ページ閲覧数リセットジョブを開始しました",
		slog.Duration("interval", interval),
		slog.Duration("window", j.Window),
	)

	// 失敗はRun内でログ済みのため次の周期で再試行する
	_ = j.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("ページ閲覧数リセットジョブを停止しました")
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
