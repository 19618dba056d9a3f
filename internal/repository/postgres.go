package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/hitoshi/rentcam/internal/retry"
)

// pgBase はPostgreSQLリポジトリ共通のDB接続とリトライ方針を保持する。
type pgBase struct {
	db       *sql.DB
	policy   retry.Policy
	observer retry.Observer
}

func newPGBase(db *sql.DB) pgBase {
	return pgBase{db: db, policy: retry.DefaultPolicy()}
}

// SetRetryPolicy は一時的なエラーに対するリトライ方針を設定する。
// observerはリトライ発生ごとに呼ばれる（nil可）。
func (b *pgBase) SetRetryPolicy(policy retry.Policy, observer retry.Observer) {
	b.policy = policy
	b.observer = observer
}

// do はfnをリトライ方針に従って実行する。
func (b *pgBase) do(ctx context.Context, fn func(ctx context.Context) error) error {
	if b.observer != nil {
		return retry.Do(ctx, b.policy, fn, b.observer)
	}
	return retry.Do(ctx, b.policy, fn)
}

// withTx はfnをトランザクション内で実行する。fnがエラーを返した場合はロールバックする。
// 一時的なエラーの場合はトランザクション全体をリトライする。
func (b *pgBase) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return b.do(ctx, func(ctx context.Context) error {
		tx, err := b.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback()

		if err := fn(tx); err != nil {
			return err
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	})
}

// isUniqueViolation はエラーが一意制約違反（23505）かどうかを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// isForeignKeyViolation はエラーが外部キー制約違反（23503）かどうかを判定する。
func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}

// escapeLike はLIKEパターンのメタ文字をエスケープする。
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// nullString は空文字列をNULLとして扱う。
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func int64Ptr(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	v := ni.Int64
	return &v
}

func derefString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func derefInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
