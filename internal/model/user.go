// Package model はドメインモデルを定義する。
package model

import "time"

// Role はユーザーの権限を表す。
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleManager Role = "MANAGER"
	RoleUser    Role = "USER"
)

// IsStaff は管理者またはマネージャーかどうかを返す。
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleManager
}

// Valid は定義済みの権限かどうかを返す。
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleUser:
		return true
	default:
		return false
	}
}

// User はサービス利用ユーザーを表す。
// Telegramのみで登録したユーザーのEmailとPasswordHashはシャドウ認証情報であり、
// 対話的なログインには使用しない。
type User struct {
	ID           string
	Email        string
	FullName     string
	Role         Role
	IsVerified   bool
	TelegramID   *int64
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// LinkStatus はTelegram連携レコードの状態を表す。
type LinkStatus string

const (
	// LinkStatusPending はボットの/startで作成され、まだユーザーに紐付いていない状態。
	LinkStatusPending LinkStatus = "pending"
	// LinkStatusLinked はユーザーに紐付いている状態。
	LinkStatusLinked LinkStatus = "linked"
)

// TelegramLink はTelegramアカウントとユーザーの紐付け情報を表す。
// telegram_idごとに1件で、UserIDは未紐付けの間nilとなる。
type TelegramLink struct {
	TelegramID int64
	UserID     *string
	Username   string
	FirstName  string
	LastName   string
	PhotoURL   string
	AuthDate   int64
	Status     LinkStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// OwnedBy は指定ユーザーが所有者かどうかを返す。
func (l *TelegramLink) OwnedBy(userID string) bool {
	return l.UserID != nil && *l.UserID == userID
}

// VerificationCode はTelegram連携用のワンタイム認証コードを表す。
// Web発行のコードはUserIDを、ボット発行のコードはTelegramIDを持つ。
type VerificationCode struct {
	ID         string
	UserID     *string
	TelegramID *int64
	Code       string
	IsVerified bool
	ExpiresAt  time.Time
	CreatedAt  time.Time
}

// Expired は指定時刻時点で有効期限切れかどうかを返す。
func (v *VerificationCode) Expired(now time.Time) bool {
	return !now.Before(v.ExpiresAt)
}

// CodeOutcome はボット経由で認証コードを受け取った際の処理結果を表す。
type CodeOutcome string

const (
	// CodeLinked はコードを消費し、Telegramアカウントを連携した。
	CodeLinked CodeOutcome = "linked"
	// CodeInvalid はコードが存在しない、消費済み、または期限切れ。
	CodeInvalid CodeOutcome = "invalid"
	// CodeNeedsWeb はボット発行のコードで所有者がおらず、サイトで入力する必要がある。
	CodeNeedsWeb CodeOutcome = "needs_web"
	// CodeConflict はTelegramアカウントが別ユーザーに連携済み。
	CodeConflict CodeOutcome = "conflict"
)
