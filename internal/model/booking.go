package model

import "time"

// BookingStatus は予約の状態を表す。
type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING"
	BookingApproved  BookingStatus = "APPROVED"
	BookingRejected  BookingStatus = "REJECTED"
	BookingCancelled BookingStatus = "CANCELLED"
	BookingCompleted BookingStatus = "COMPLETED"
)

// Valid は定義済みの状態かどうかを返す。
func (s BookingStatus) Valid() bool {
	switch s {
	case BookingPending, BookingApproved, BookingRejected, BookingCancelled, BookingCompleted:
		return true
	default:
		return false
	}
}

// Active は機材を占有している状態（承認待ちまたは承認済み）かどうかを返す。
func (s BookingStatus) Active() bool {
	return s == BookingPending || s == BookingApproved
}

// Booking は機材の予約を表す。
type Booking struct {
	ID          string
	UserID      string
	EquipmentID string
	StartDate   time.Time
	EndDate     time.Time
	Status      BookingStatus
	Notes       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// BookingFilter は予約一覧の検索条件。
// UserIDが空の場合は全ユーザーを対象とする。
type BookingFilter struct {
	UserID      string
	EquipmentID string
	Status      BookingStatus
	From        *time.Time
	To          *time.Time
	Limit       int
	Offset      int
}
