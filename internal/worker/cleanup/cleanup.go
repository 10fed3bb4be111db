// Package cleanup はクライアント状態の自動削除ジョブを提供する。
// 保持期間（デフォルト30日）を超えて更新されていないブラウザセッションの
// トークンとプロフィールを、cron形式のスケジュールで削除する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultRetention はクライアント状態のデフォルト保持期間。
const DefaultRetention = 30 * 24 * time.Hour

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Recorder は削除件数の記録先。
type Recorder interface {
	RecordCleanup(deleted int64)
}

// CleanupJob は保持期間を超過したクライアント状態の削除ジョブ。
// 冪等で、何度実行しても同じ結果になる。
type CleanupJob struct {
	db        Executor
	logger    *slog.Logger
	recorder  Recorder
	Retention time.Duration
}

// NewCleanupJob は新しいCleanupJobを生成する。retentionが0以下ならDefaultRetentionを使う。
func NewCleanupJob(db Executor, logger *slog.Logger, retention time.Duration) *CleanupJob {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &CleanupJob{
		db:        db,
		logger:    logger,
		Retention: retention,
	}
}

// WithRecorder はメトリクスの記録先を設定する。
func (j *CleanupJob) WithRecorder(r Recorder) *CleanupJob {
	j.recorder = r
	return j
}

// Run はupdated_atが保持期間より古いクライアント状態を削除し、削除件数を返す。
// トークンとプロフィールは同時に書き込まれるため、namespace単位でまとめて消える。
func (j *CleanupJob) Run(ctx context.Context) (int64, error) {
	start := time.Now()

	interval := fmt.Sprintf("%d seconds", int64(j.Retention.Seconds()))

	query := `DELETE FROM client_state WHERE updated_at < now() - $1::interval`
	result, err := j.db.ExecContext(ctx, query, interval)
	if err != nil {
		j.logger.Error("クライアント状態のクリーンアップに失敗しました",
			slog.String("error", err.Error()),
			slog.Duration("retention", j.Retention),
		)
		return 0, fmt.Errorf("クライアント状態のクリーンアップに失敗: %w", err)
	}

	deletedCount, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("削除件数の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("削除件数の取得に失敗: %w", err)
	}

	if j.recorder != nil {
		j.recorder.RecordCleanup(deletedCount)
	}

	j.logger.Info("クライアント状態のクリーンアップが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Duration("retention", j.Retention),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return deletedCount, nil
}

// Scheduler はcron形式のスケジュールでCleanupJobを実行する。
type Scheduler struct {
	job      *CleanupJob
	schedule string
	logger   *slog.Logger
}

// NewScheduler はSchedulerを生成する。scheduleは "@daily" や "0 3 * * *" などの形式。
// 不正なscheduleの場合はエラーを返す。
func NewScheduler(job *CleanupJob, schedule string, logger *slog.Logger) (*Scheduler, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", schedule, err)
	}
	return &Scheduler{job: job, schedule: schedule, logger: logger}, nil
}

// Start は起動直後に1回ジョブを実行し、以降はスケジュールに従って実行する。
// ctxがキャンセルされるまでブロックし、実行中のジョブの完了を待ってから戻る。
func (s *Scheduler) Start(ctx context.Context) {
	s.runOnce(ctx)

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(s.schedule, func() { s.runOnce(ctx) }); err != nil {
		s.logger.Error("クリーンアップのスケジュール登録に失敗しました",
			slog.String("schedule", s.schedule),
			slog.String("error", err.Error()),
		)
		return
	}

	s.logger.Info("クリーンアップスケジューラを開始しました", slog.String("schedule", s.schedule))
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info("クリーンアップスケジューラを停止しました")
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	// エラーはRun内でログ出力済み
	_, _ = s.job.Run(ctx)
}
