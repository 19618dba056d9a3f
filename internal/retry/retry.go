// Package retry はストア呼び出しの一時的な失敗に対する有限回リトライを提供する。
// 署名検証や鮮度チェックなど、ロジック上の失敗には使用しない。
package retry

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"time"

	"github.com/lib/pq"
)

// Policy はリトライ方針を表す。
type Policy struct {
	MaxAttempts    int           // 初回を含む最大試行回数
	InitialBackoff time.Duration // 1回目の待機時間
	MaxBackoff     time.Duration // 待機時間の上限
}

// DefaultPolicy はデフォルトのリトライ方針を返す。
// 3回試行、初回100ms、上限2秒。
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
	}
}

// NoRetry はリトライしない方針を返す。
func NoRetry() Policy {
	return Policy{MaxAttempts: 1}
}

// Observer はリトライ発生時に通知を受け取る。メトリクス記録用。
type Observer func(attempt int, err error)

// CalculateBackoff は試行回数に基づく指数バックオフの待機時間を計算する。
// attemptは0始まりで、InitialBackoffから2倍ずつ増加しMaxBackoffで頭打ちになる。
func (p Policy) CalculateBackoff(attempt int) time.Duration {
	delay := p.InitialBackoff
	for i := 0; i < attempt; i++ {
		delay *= 2
		if p.MaxBackoff > 0 && delay > p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	return delay
}

// Do はfnを実行し、一時的なエラーの場合はバックオフしながら再試行する。
// 恒久的なエラー、コンテキストのキャンセル、試行回数の上限到達で終了する。
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error, observers ...Observer) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if !IsTransient(err) || attempt == attempts-1 {
			return err
		}

		for _, o := range observers {
			o(attempt+1, err)
		}

		timer := time.NewTimer(p.CalculateBackoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}
	return err
}

// IsTransient はエラーがリトライで解消し得る一時的なものかを判定する。
// 接続断、シリアライゼーション失敗、デッドロック、サーバー停止を対象とする。
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01", "57P01":
			return true
		}
		return pqErr.Code.Class() == "08"
	}
	return false
}
