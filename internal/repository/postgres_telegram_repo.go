package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/rentcam/internal/model"
)

// errNotClaimed はトランザクション内で連携を取得できなかったことを表す。ロールバック用。
var errNotClaimed = errors.New("telegram link not claimed")

// PostgresTelegramRepo はPostgreSQLを使用したTelegram連携リポジトリ。
type PostgresTelegramRepo struct {
	pgBase
}

// NewPostgresTelegramRepo はPostgresTelegramRepoを生成する。
func NewPostgresTelegramRepo(db *sql.DB) *PostgresTelegramRepo {
	return &PostgresTelegramRepo{pgBase: newPGBase(db)}
}

const linkColumns = `telegram_id, user_id, username, first_name, last_name, photo_url, auth_date, status, created_at, updated_at`

func scanLink(row interface{ Scan(...any) error }) (*model.TelegramLink, error) {
	link := &model.TelegramLink{}
	var userID sql.NullString
	err := row.Scan(
		&link.TelegramID, &userID, &link.Username, &link.FirstName, &link.LastName,
		&link.PhotoURL, &link.AuthDate, &link.Status, &link.CreatedAt, &link.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	link.UserID = stringPtr(userID)
	return link, nil
}

func (r *PostgresTelegramRepo) findOne(ctx context.Context, query string, arg any) (*model.TelegramLink, error) {
	var link *model.TelegramLink
	err := r.do(ctx, func(ctx context.Context) error {
		l, err := scanLink(r.db.QueryRowContext(ctx, query, arg))
		if err == sql.ErrNoRows {
			link = nil
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to find telegram link: %w", err)
		}
		link = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return link, nil
}

// FindByTelegramID はtelegram_idで連携を検索する。見つからない場合はnilを返す。
func (r *PostgresTelegramRepo) FindByTelegramID(ctx context.Context, telegramID int64) (*model.TelegramLink, error) {
	return r.findOne(ctx, `SELECT `+linkColumns+` FROM telegram_users WHERE telegram_id = $1`, telegramID)
}

// FindByUserID はユーザーが所有する連携を検索する。見つからない場合はnilを返す。
func (r *PostgresTelegramRepo) FindByUserID(ctx context.Context, userID string) (*model.TelegramLink, error) {
	return r.findOne(ctx, `SELECT `+linkColumns+` FROM telegram_users WHERE user_id = $1`, userID)
}

// CreatePending は所有者のないpendingレコードを作成する。
func (r *PostgresTelegramRepo) CreatePending(ctx context.Context, link *model.TelegramLink) (bool, error) {
	var created bool
	err := r.do(ctx, func(ctx context.Context) error {
		result, err := r.db.ExecContext(ctx,
			`INSERT INTO telegram_users (telegram_id, username, first_name, last_name, status, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, 'pending', now(), now())
			 ON CONFLICT (telegram_id) DO NOTHING`,
			link.TelegramID, link.Username, link.FirstName, link.LastName,
		)
		if err != nil {
			return fmt.Errorf("failed to insert pending telegram link: %w", err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		created = rowsAffected > 0
		return nil
	})
	return created, err
}

// RefreshProfile はプロフィールスナップショットを更新し、所有者を認証済みにする。
func (r *PostgresTelegramRepo) RefreshProfile(ctx context.Context, link *model.TelegramLink) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		var owner sql.NullString
		err := tx.QueryRowContext(ctx,
			`UPDATE telegram_users
			 SET username = $2, first_name = $3, last_name = $4, photo_url = $5, auth_date = $6, updated_at = now()
			 WHERE telegram_id = $1
			 RETURNING user_id`,
			link.TelegramID, link.Username, link.FirstName, link.LastName, link.PhotoURL, link.AuthDate,
		).Scan(&owner)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to refresh telegram link: %w", err)
		}
		if !owner.Valid {
			return nil
		}
		return markVerifiedTx(ctx, tx, owner.String, link.TelegramID)
	})
}

// Claim は連携を指定ユーザーの所有とし、ユーザーを認証済みにする。
func (r *PostgresTelegramRepo) Claim(ctx context.Context, userID string, link *model.TelegramLink) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
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

// DeleteByUserID はユーザーの連携を削除し、is_verifiedとtelegram_idを解除する。
func (r *PostgresTelegramRepo) DeleteByUserID(ctx context.Context, userID string) (bool, error) {
	var deleted bool
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		deleted = false
		result, err := tx.ExecContext(ctx, `DELETE FROM telegram_users WHERE user_id = $1`, userID)
		if err != nil {
			return fmt.Errorf("failed to delete telegram link: %w", err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return nil
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE users SET is_verified = false, telegram_id = NULL, updated_at = now() WHERE id = $1`,
			userID,
		)
		if err != nil {
			return fmt.Errorf("failed to clear user verification: %w", err)
		}
		deleted = true
		return nil
	})
	return deleted, err
}

// DeleteStalePending はolderThanより前に作成された所有者のないpendingレコードを削除する。
func (r *PostgresTelegramRepo) DeleteStalePending(ctx context.Context, olderThan time.Time) (int64, error) {
	var deleted int64
	err := r.do(ctx, func(ctx context.Context) error {
		result, err := r.db.ExecContext(ctx,
			`DELETE FROM telegram_users WHERE user_id IS NULL AND status = 'pending' AND created_at < $1`,
			olderThan,
		)
		if err != nil {
			return fmt.Errorf("failed to delete stale pending links: %w", err)
		}
		deleted, err = result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		return nil
	})
	return deleted, err
}

// claimLinkTx はtelegram_idの連携を未所有または同一ユーザー所有の場合に限りuserIDの所有とする。
// 別ユーザーが所有している場合は行を変更せずfalseを返す。
func claimLinkTx(ctx context.Context, tx *sql.Tx, userID string, link *model.TelegramLink) (bool, error) {
	result, err := tx.ExecContext(ctx,
		`INSERT INTO telegram_users (telegram_id, user_id, username, first_name, last_name, photo_url, auth_date, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, 'linked', now(), now())
		 ON CONFLICT (telegram_id) DO UPDATE
		 SET user_id = EXCLUDED.user_id,
		     username = COALESCE(NULLIF(EXCLUDED.username, ''), telegram_users.username),
		     first_name = COALESCE(NULLIF(EXCLUDED.first_name, ''), telegram_users.first_name),
		     last_name = COALESCE(NULLIF(EXCLUDED.last_name, ''), telegram_users.last_name),
		     photo_url = COALESCE(NULLIF(EXCLUDED.photo_url, ''), telegram_users.photo_url),
		     auth_date = GREATEST(EXCLUDED.auth_date, telegram_users.auth_date),
		     status = 'linked',
		     updated_at = now()
		 WHERE telegram_users.user_id IS NULL OR telegram_users.user_id = EXCLUDED.user_id`,
		link.TelegramID, userID, link.Username, link.FirstName, link.LastName, link.PhotoURL, link.AuthDate,
	)
	if err != nil {
		if isUniqueViolation(err) {
			// user_idの一意制約: ユーザーが別のtelegram_idと連携済み
			return false, ErrLinkConflict
		}
		return false, fmt.Errorf("failed to claim telegram link: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// markVerifiedTx はユーザーを認証済みにしtelegram_idを設定する。
func markVerifiedTx(ctx context.Context, tx *sql.Tx, userID string, telegramID int64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE users SET is_verified = true, telegram_id = $2, updated_at = now() WHERE id = $1`,
		userID, telegramID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrLinkConflict
		}
		return fmt.Errorf("failed to mark user verified: %w", err)
	}
	return nil
}

// compile-time interface check
var _ TelegramLinkRepository = (*PostgresTelegramRepo)(nil)
