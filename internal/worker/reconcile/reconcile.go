// Package reconcile はレビューのいいね数を review_likes から再計算する定期ジョブを提供する。
// reviews.like_count は表示用の非正規化カラムのため、ずれが生じた場合にここで補正する。
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Recounter はいいね数の再計算を行うインターフェース。
// repository.LikeRepository の部分集合として定義する。
type Recounter interface {
	Recount(ctx context.Context) (int64, error)
}

// Job はいいね数の再計算ジョブ。冪等で、補正対象がない場合もエラーにならない。
type Job struct {
	recounter Recounter
	logger    *slog.Logger
}

// NewJob は新しいJobを生成する。
func NewJob(recounter Recounter, logger *slog.Logger) *Job {
	if logger == nil {
		logger = slog.Default()
	}
	return &Job{recounter: recounter, logger: logger}
}

// Run は1回分の再計算を実行する。
func (j *Job) Run(ctx context.Context) error {
	start := time.Now()

	fixed, err := j.recounter.Recount(ctx)
	if err != nil {
		j.logger.Error("いいね数の再計算に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("いいね数の再計算に失敗: %w", err)
	}

	j.logger.Info("いいね数の再計算が完了しました",
		slog.Int64("fixed_count", fixed),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Start は起動直後に1回実行し、以後 interval ごとに実行する。ctx がキャンセルされるまでブロックする。
// 個々の実行の失敗はログに記録して次回に持ち越す。
func (j *Job) Start(ctx context.Context, interval time.Duration) {
	_ = j.Run(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
