package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/rentcam/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	pgBase
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{pgBase: newPGBase(db)}
}

const userColumns = `id, email, full_name, role, is_verified, telegram_id, password_hash, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	user := &model.User{}
	var telegramID sql.NullInt64
	err := row.Scan(
		&user.ID, &user.Email, &user.FullName, &user.Role, &user.IsVerified,
		&telegramID, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.TelegramID = int64Ptr(telegramID)
	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	var user *model.User
	err := r.do(ctx, func(ctx context.Context) error {
		u, err := scanUser(r.db.QueryRowContext(ctx,
			`SELECT `+userColumns+` FROM users WHERE id = $1`,
			id,
		))
		if err == sql.ErrNoRows {
			user = nil
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to find user by ID: %w", err)
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// CreateWithTelegramLink はユーザーとTelegram連携を同一トランザクションで作成する。
// 連携レコードの取得に失敗した場合（別ユーザーが先に所有した場合）はロールバックしてfalseを返す。
func (r *PostgresUserRepo) CreateWithTelegramLink(ctx context.Context, user *model.User, link *model.TelegramLink) (bool, error) {
	var created bool
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		created = false

		// telegram_idは連携の取得後に設定する
		_, err := tx.ExecContext(ctx,
			`INSERT INTO users (id, email, full_name, role, is_verified, password_hash, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, false, $5, $6, $7)`,
			user.ID, user.Email, user.FullName, user.Role, user.PasswordHash, user.CreatedAt, user.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return fmt.Errorf("failed to insert user: %w", err)
		}

		claimed, err := claimLinkTx(ctx, tx, user.ID, link)
		if err != nil {
			return err
		}
		if !claimed {
			return errNotClaimed
		}

		if err := markVerifiedTx(ctx, tx, user.ID, link.TelegramID); err != nil {
			return err
		}

		created = true
		return nil
	})
	if err == errNotClaimed {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	user.IsVerified = true
	user.TelegramID = &link.TelegramID
	return created, nil
}

// UpdateProfile はfull_nameとemailを更新する。
func (r *PostgresUserRepo) UpdateProfile(ctx context.Context, user *model.User) error {
	return r.do(ctx, func(ctx context.Context) error {
		result, err := r.db.ExecContext(ctx,
			`UPDATE users SET full_name = $2, email = $3, updated_at = $4 WHERE id = $1`,
			user.ID, user.FullName, user.Email, user.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return fmt.Errorf("failed to update user profile: %w", err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return fmt.Errorf("user not found: %s", user.ID)
		}
		return nil
	})
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
