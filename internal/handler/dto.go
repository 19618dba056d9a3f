package handler

import (
	"encoding/json"
	"time"

	"github.com/hitoshi/rentcam/internal/model"
)

// userResponse はユーザー情報のAPIレスポンス。パスワードハッシュは含めない。
type userResponse struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	FullName   string    `json:"full_name"`
	Role       string    `json:"role"`
	IsVerified bool      `json:"is_verified"`
	TelegramID *int64    `json:"telegram_id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:         u.ID,
		Email:      u.Email,
		FullName:   u.FullName,
		Role:       string(u.Role),
		IsVerified: u.IsVerified,
		TelegramID: u.TelegramID,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
}

// equipmentResponse は機材情報のAPIレスポンス。
type equipmentResponse struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	Category       string          `json:"category"`
	SerialNumber   *string         `json:"serial_number"`
	IsAvailable    bool            `json:"is_available"`
	ImageURL       string          `json:"image_url"`
	Specifications json.RawMessage `json:"specifications"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func toEquipmentResponse(e *model.Equipment) equipmentResponse {
	specs := e.Specifications
	if len(specs) == 0 {
		specs = json.RawMessage("{}")
	}
	return equipmentResponse{
		ID:             e.ID,
		Name:           e.Name,
		Description:    e.Description,
		Category:       string(e.Category),
		SerialNumber:   e.SerialNumber,
		IsAvailable:    e.IsAvailable,
		ImageURL:       e.ImageURL,
		Specifications: specs,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}

// equipmentDetailResponse は機材詳細。承認待ち・承認済みの予約を含む。
type equipmentDetailResponse struct {
	equipmentResponse
	Bookings []bookingResponse `json:"bookings"`
}

// bookingResponse は予約情報のAPIレスポンス。
type bookingResponse struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	EquipmentID string    `json:"equipment_id"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	Status      string    `json:"status"`
	Notes       string    `json:"notes"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toBookingResponse(b *model.Booking) bookingResponse {
	return bookingResponse{
		ID:          b.ID,
		UserID:      b.UserID,
		EquipmentID: b.EquipmentID,
		StartDate:   b.StartDate,
		EndDate:     b.EndDate,
		Status:      string(b.Status),
		Notes:       b.Notes,
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
	}
}

func toBookingResponses(bookings []*model.Booking) []bookingResponse {
	out := make([]bookingResponse, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, toBookingResponse(b))
	}
	return out
}

// listResponse は一覧のページング付きレスポンス。
type listResponse struct {
	Items  interface{} `json:"items"`
	Total  int         `json:"total"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

// verificationResponse は認証コードのAPIレスポンス。
type verificationResponse struct {
	VerificationCode string    `json:"verification_code"`
	ExpiresAt        time.Time `json:"expires_at"`
	IsVerified       bool      `json:"is_verified"`
}

func toVerificationResponse(c *model.VerificationCode) *verificationResponse {
	if c == nil {
		return nil
	}
	return &verificationResponse{
		VerificationCode: c.Code,
		ExpiresAt:        c.ExpiresAt,
		IsVerified:       c.IsVerified,
	}
}
