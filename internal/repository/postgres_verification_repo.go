package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/rentcam/internal/model"
)

// PostgresVerificationRepo はPostgreSQLを使用した認証コードリポジトリ。
type PostgresVerificationRepo struct {
	pgBase
}

// NewPostgresVerificationRepo はPostgresVerificationRepoを生成する。
func NewPostgresVerificationRepo(db *sql.DB) *PostgresVerificationRepo {
	return &PostgresVerificationRepo{pgBase: newPGBase(db)}
}

const verificationColumns = `id, user_id, telegram_id, verification_code, is_verified, expires_at, created_at`

func scanVerification(row interface{ Scan(...any) error }) (*model.VerificationCode, error) {
	code := &model.VerificationCode{}
	var userID sql.NullString
	var telegramID sql.NullInt64
	err := row.Scan(
		&code.ID, &userID, &telegramID, &code.Code, &code.IsVerified, &code.ExpiresAt, &code.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	code.UserID = stringPtr(userID)
	code.TelegramID = int64Ptr(telegramID)
	return code, nil
}

func insertVerificationTx(ctx context.Context, tx *sql.Tx, code *model.VerificationCode) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO telegram_verifications (id, user_id, telegram_id, verification_code, is_verified, expires_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, false, $5, $6, $6)`,
		code.ID, derefString(code.UserID), derefInt64(code.TelegramID), code.Code, code.ExpiresAt, code.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert verification code: %w", err)
	}
	return nil
}

// ReplaceForUser はユーザーの既存コードを削除し、新しいコードを保存する。
func (r *PostgresVerificationRepo) ReplaceForUser(ctx context.Context, code *model.VerificationCode) error {
	if code.UserID == nil {
		return fmt.Errorf("verification code has no user")
	}
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM telegram_verifications WHERE user_id = $1`,
			*code.UserID,
		); err != nil {
			return fmt.Errorf("failed to delete previous verification codes: %w", err)
		}
		return insertVerificationTx(ctx, tx, code)
	})
}

// ReplaceForTelegram はtelegram_idに対する未消費コードを削除し、新しいコードを保存する。
func (r *PostgresVerificationRepo) ReplaceForTelegram(ctx context.Context, code *model.VerificationCode) error {
	if code.TelegramID == nil {
		return fmt.Errorf("verification code has no telegram id")
	}
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM telegram_verifications WHERE telegram_id = $1 AND is_verified = false`,
			*code.TelegramID,
		); err != nil {
			return fmt.Errorf("failed to delete previous verification codes: %w", err)
		}
		return insertVerificationTx(ctx, tx, code)
	})
}

func (r *PostgresVerificationRepo) findOne(ctx context.Context, query string, args ...any) (*model.VerificationCode, error) {
	var code *model.VerificationCode
	err := r.do(ctx, func(ctx context.Context) error {
		c, err := scanVerification(r.db.QueryRowContext(ctx, query, args...))
		if err == sql.ErrNoRows {
			code = nil
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to find verification code: %w", err)
		}
		code = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return code, nil
}

// FindActiveByCode は未消費かつ有効期限内のコードを検索する。
func (r *PostgresVerificationRepo) FindActiveByCode(ctx context.Context, code string, now time.Time) (*model.VerificationCode, error) {
	return r.findOne(ctx,
		`SELECT `+verificationColumns+` FROM telegram_verifications
		 WHERE verification_code = $1 AND is_verified = false AND expires_at > $2
		 ORDER BY created_at DESC LIMIT 1`,
		code, now,
	)
}

// FindLatestByUserID はユーザーの最新コードを取得する。
func (r *PostgresVerificationRepo) FindLatestByUserID(ctx context.Context, userID string) (*model.VerificationCode, error) {
	return r.findOne(ctx,
		`SELECT `+verificationColumns+` FROM telegram_verifications
		 WHERE user_id = $1
		 ORDER BY created_at DESC LIMIT 1`,
		userID,
	)
}

// Consume はコードの消費、連携の付与、ユーザーの認証済み化を1トランザクションで行う。
func (r *PostgresVerificationRepo) Consume(ctx context.Context, codeID, userID string, link *model.TelegramLink) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		// 未消費の場合のみ消費する。並行した消費は一方だけが成功する
		result, err := tx.ExecContext(ctx,
			`UPDATE telegram_verifications
			 SET is_verified = true, user_id = $2, telegram_id = $3, updated_at = now()
			 WHERE id = $1 AND is_verified = false AND expires_at > now()`,
			codeID, userID, link.TelegramID,
		)
		if err != nil {
			return fmt.Errorf("failed to consume verification code: %w", err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return ErrCodeUnavailable
		}

		claimed, err := claimLinkTx(ctx, tx, userID, link)
		if err != nil {
			return err
		}
		if !claimed {
			return ErrLinkConflict
		}
		return markVerifiedTx(ctx, tx, userID, link.TelegramID)
	})
}

// DeleteExpired は消費されずに有効期限を過ぎたコードを削除し、削除件数を返す。
func (r *PostgresVerificationRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var deleted int64
	err := r.do(ctx, func(ctx context.Context) error {
		result, err := r.db.ExecContext(ctx,
			`DELETE FROM telegram_verifications WHERE is_verified = false AND expires_at <= $1`,
			now,
		)
		if err != nil {
			return fmt.Errorf("failed to delete expired verification codes: %w", err)
		}
		deleted, err = result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		return nil
	})
	return deleted, err
}

// compile-time interface check
var _ VerificationRepository = (*PostgresVerificationRepo)(nil)
