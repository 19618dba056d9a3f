// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/rentcam/internal/model"
)

var (
	// ErrDuplicate は一意制約違反を表す。
	ErrDuplicate = errors.New("duplicate key")
	// ErrLinkConflict はTelegram連携が別ユーザーに所有されていることを表す。
	ErrLinkConflict = errors.New("telegram link owned by another user")
	// ErrCodeUnavailable は認証コードが消費済み・期限切れ・存在しないことを表す。
	ErrCodeUnavailable = errors.New("verification code unavailable")
	// ErrReferenced は他テーブルから参照されているため削除できないことを表す。
	ErrReferenced = errors.New("row is referenced")
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// CreateWithTelegramLink はユーザーとTelegram連携を同一トランザクションで作成する。
	// telegram_idの連携が既に別ユーザーに所有されている場合（初回ログインの競合に負けた場合）は
	// 何も作成せずfalseを返す。未所有のpendingレコードは新規ユーザーが引き継ぐ。
	CreateWithTelegramLink(ctx context.Context, user *model.User, link *model.TelegramLink) (bool, error)

	// UpdateProfile はfull_nameとemailを更新する。emailの重複時はErrDuplicateを返す。
	UpdateProfile(ctx context.Context, user *model.User) error
}

// TelegramLinkRepository はTelegram連携情報の永続化インターフェース。
type TelegramLinkRepository interface {
	// FindByTelegramID はtelegram_idで連携を検索する。見つからない場合はnilを返す。
	FindByTelegramID(ctx context.Context, telegramID int64) (*model.TelegramLink, error)

	// FindByUserID はユーザーが所有する連携を検索する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.TelegramLink, error)

	// CreatePending は所有者のないpendingレコードを作成する。既に存在する場合はfalseを返す。
	CreatePending(ctx context.Context, link *model.TelegramLink) (bool, error)

	// RefreshProfile は連携のプロフィールスナップショットとauth_dateを更新する。
	// 所有者がいる場合は所有者を認証済みとしtelegram_idを設定する。
	RefreshProfile(ctx context.Context, link *model.TelegramLink) error

	// Claim は連携を指定ユーザーの所有とし、ユーザーを認証済みにする。
	// 別ユーザーが所有している場合はErrLinkConflictを返し、所有者は変更しない。
	Claim(ctx context.Context, userID string, link *model.TelegramLink) error

	// DeleteByUserID はユーザーの連携を削除し、ユーザーの認証状態を解除する。
	// 連携が存在しない場合はfalseを返す。
	DeleteByUserID(ctx context.Context, userID string) (bool, error)
}

// VerificationRepository は認証コードの永続化インターフェース。
type VerificationRepository interface {
	// ReplaceForUser はユーザーの既存コードを削除し、新しいコードを保存する。
	ReplaceForUser(ctx context.Context, code *model.VerificationCode) error

	// ReplaceForTelegram はtelegram_idに対する未消費コードを削除し、新しいコードを保存する。
	ReplaceForTelegram(ctx context.Context, code *model.VerificationCode) error

	// FindActiveByCode は未消費かつ有効期限内のコードを検索する。見つからない場合はnilを返す。
	FindActiveByCode(ctx context.Context, code string, now time.Time) (*model.VerificationCode, error)

	// FindLatestByUserID はユーザーの最新コードを取得する。見つからない場合はnilを返す。
	FindLatestByUserID(ctx context.Context, userID string) (*model.VerificationCode, error)

	// Consume はコードを消費し、telegram_idの連携をユーザーに付与してユーザーを認証済みにする。
	// 1トランザクションで実行し、いずれかが失敗した場合は何も変更しない。
	// 既に消費済み・期限切れの場合はErrCodeUnavailable、
	// 連携が別ユーザーに所有されている場合はErrLinkConflictを返す。
	Consume(ctx context.Context, codeID, userID string, link *model.TelegramLink) error
}

// EquipmentRepository は機材データの永続化インターフェース。
type EquipmentRepository interface {
	// List は条件に合う機材と総件数を返す。
	List(ctx context.Context, filter model.EquipmentFilter) ([]*model.Equipment, int, error)

	// FindByID は指定IDの機材を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Equipment, error)

	// Create は機材を作成する。シリアル番号の重複時はErrDuplicateを返す。
	Create(ctx context.Context, equipment *model.Equipment) error

	// Update は機材を更新する。シリアル番号の重複時はErrDuplicateを返す。
	Update(ctx context.Context, equipment *model.Equipment) error

	// Delete は機材を削除する。存在しない場合はfalseを返す。
	// 予約から参照されている場合はErrReferencedを返す。
	Delete(ctx context.Context, id string) (bool, error)
}

// BookingRepository は予約データの永続化インターフェース。
type BookingRepository interface {
	// List は条件に合う予約と総件数を返す。
	List(ctx context.Context, filter model.BookingFilter) ([]*model.Booking, int, error)

	// ListActiveByEquipment は機材の承認待ち・承認済みの予約を開始日時順で返す。
	ListActiveByEquipment(ctx context.Context, equipmentID string) ([]*model.Booking, error)

	// CountActiveByEquipment は機材の承認待ち・承認済みの予約数を返す。
	CountActiveByEquipment(ctx context.Context, equipmentID string) (int, error)

	// FindByID は指定IDの予約を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Booking, error)

	// Create は予約を作成する。
	Create(ctx context.Context, booking *model.Booking) error

	// Update は予約を更新する。
	Update(ctx context.Context, booking *model.Booking) error

	// Delete は予約を削除する。存在しない場合はfalseを返す。
	Delete(ctx context.Context, id string) (bool, error)

	// CheckAvailability はcheck_equipment_availabilityで期間の空きを確認する。
	// excludeBookingIDが空でない場合はその予約を重複判定から除外する。
	CheckAvailability(ctx context.Context, equipmentID string, start, end time.Time, excludeBookingID string) (bool, error)
}
