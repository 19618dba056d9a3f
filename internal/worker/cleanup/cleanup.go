// Package cleanup は期限切れの認証コードと放置されたpending連携の定期削除ジョブを提供する。
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultPendingRetention は所有者のないpending連携を保持する期間。
const DefaultPendingRetention = 30 * 24 * time.Hour

// 削除対象の種別。メトリクスのラベルに使う。
const (
	KindExpiredCodes = "expired_codes"
	KindStalePending = "stale_pending_links"
)

// ExpiredCodeDeleter は期限切れの未消費コードを削除する。
type ExpiredCodeDeleter interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// PendingLinkDeleter はolderThanより前に作成されたpending連携を削除する。
type PendingLinkDeleter interface {
	DeleteStalePending(ctx context.Context, olderThan time.Time) (int64, error)
}

// Observer は削除件数を記録する。*metrics.Collectorが満たす。
type Observer interface {
	RecordCleanupDeleted(kind string, count int64)
}

// CleanupJob は認証コードとpending連携の削除ジョブ。
// 冪等であり、削除対象がなくてもエラーにならない。
type CleanupJob struct {
	codes    ExpiredCodeDeleter
	pending  PendingLinkDeleter
	observer Observer
	logger   *slog.Logger
	now      func() time.Time

	// PendingRetention はpending連携の保持期間（デフォルト: 30日）
	PendingRetention time.Duration
}

// NewCleanupJob は新しいCleanupJobを生成する。observerはnil可。
func NewCleanupJob(codes ExpiredCodeDeleter, pending PendingLinkDeleter, observer Observer, logger *slog.Logger) *CleanupJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupJob{
		codes:            codes,
		pending:          pending,
		observer:         observer,
		logger:           logger,
		now:              time.Now,
		PendingRetention: DefaultPendingRetention,
	}
}

// Run は1回分の削除を行う。片方が失敗してももう片方は実行し、両方のエラーをまとめて返す。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := j.now()

	codes, codeErr := j.codes.DeleteExpired(ctx, start)
	if codeErr != nil {
		j.logger.Error("期限切れ認証コードの削除に失敗しました", slog.String("error", codeErr.Error()))
		codeErr = fmt.Errorf("failed to delete expired codes: %w", codeErr)
	} else {
		j.record(KindExpiredCodes, codes)
	}

	cutoff := start.Add(-j.PendingRetention)
	links, linkErr := j.pending.DeleteStalePending(ctx, cutoff)
	if linkErr != nil {
		j.logger.Error("pending連携の削除に失敗しました", slog.String("error", linkErr.Error()))
		linkErr = fmt.Errorf("failed to delete stale pending links: %w", linkErr)
	} else {
		j.record(KindStalePending, links)
	}

	if err := errors.Join(codeErr, linkErr); err != nil {
		return err
	}

	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("deleted_codes", codes),
		slog.Int64("deleted_pending_links", links),
		slog.Time("pending_cutoff", cutoff),
		slog.Float64("duration_ms", float64(j.now().Sub(start).Milliseconds())),
	)
	return nil
}

// Start はintervalごとにRunを実行する。起動直後に1回実行し、ctxがキャンセルされるまで継続する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("クリーンアップジョブを開始しました", slog.Duration("interval", interval))

	j.runLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("クリーンアップジョブを停止しました")
			return
		case <-ticker.C:
			j.runLogged(ctx)
		}
	}
}

func (j *CleanupJob) runLogged(ctx context.Context) {
	if err := j.Run(ctx); err != nil && ctx.Err() == nil {
		j.logger.Error("クリーンアップサイクルの実行に失敗しました", slog.String("error", err.Error()))
	}
}

func (j *CleanupJob) record(kind string, count int64) {
	if j.observer != nil {
		j.observer.RecordCleanupDeleted(kind, count)
	}
}
