// Package booking は機材予約のビジネスロジックと権限判定を提供する。
package booking

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/rentcam/internal/model"
	"github.com/hitoshi/rentcam/internal/repository"
	"github.com/hitoshi/rentcam/internal/security"
)

// CreateInput は予約の作成内容。
type CreateInput struct {
	EquipmentID string
	StartDate   time.Time
	EndDate     time.Time
	Notes       string
}

// UpdateInput は予約の部分更新内容。nilのフィールドは変更しない。
// EquipmentIDとUserIDは管理者・マネージャーのみ変更できる。
type UpdateInput struct {
	StartDate   *time.Time
	EndDate     *time.Time
	Notes       *string
	Status      *model.BookingStatus
	EquipmentID *string
	UserID      *string
}

// ListResult は予約一覧の結果。
type ListResult struct {
	Items  []*model.Booking
	Total  int
	Limit  int
	Offset int
}

// Service は予約のサービス層。
//
// 権限:
//   - 一般ユーザーは自分の予約のみ参照・変更できる
//   - 一般ユーザーが変更できるのは承認待ちの予約の日時・備考と、キャンセルのみ
//   - 一般ユーザーが削除できるのは承認待ちの自分の予約のみ
//   - 管理者・マネージャーは全ての予約を操作できる
type Service struct {
	bookings  repository.BookingRepository
	equipment repository.EquipmentRepository
	sanitizer security.TextSanitizer
	logger    *slog.Logger
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	bookings repository.BookingRepository,
	equipment repository.EquipmentRepository,
	sanitizer security.TextSanitizer,
	logger *slog.Logger,
) *Service {
	return &Service{
		bookings:  bookings,
		equipment: equipment,
		sanitizer: sanitizer,
		logger:    logger,
		now:       time.Now,
	}
}

// List は予約を開始日時の降順で返す。一般ユーザーは自分の予約に限定する。
func (s *Service) List(ctx context.Context, actor model.Actor, filter model.BookingFilter) (*ListResult, error) {
	if !actor.IsStaff() {
		filter.UserID = actor.UserID
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, model.NewValidationError(map[string]string{"status": "予約状態が不正です。"})
	}
	filter.Limit, filter.Offset = model.ClampPage(filter.Limit, filter.Offset)

	items, total, err := s.bookings.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	if items == nil {
		items = []*model.Booking{}
	}
	return &ListResult{Items: items, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

// Get は予約を返す。所有者以外の一般ユーザーにはFORBIDDENを返す。
func (s *Service) Get(ctx context.Context, actor model.Actor, id string) (*model.Booking, error) {
	b, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canAccess(actor, b) {
		return nil, model.NewForbiddenError()
	}
	return b, nil
}

// Create は承認待ちの予約を作成する。
func (s *Service) Create(ctx context.Context, actor model.Actor, in CreateInput) (*model.Booking, error) {
	if err := s.checkPeriod(in.StartDate, in.EndDate); err != nil {
		return nil, err
	}

	e, err := s.findEquipment(ctx, in.EquipmentID)
	if err != nil {
		return nil, err
	}
	if !e.IsAvailable {
		return nil, model.NewEquipmentUnavailableError()
	}

	if err := s.checkAvailability(ctx, e.ID, in.StartDate, in.EndDate, ""); err != nil {
		return nil, err
	}

	now := s.now()
	b := &model.Booking{
		ID:          uuid.New().String(),
		UserID:      actor.UserID,
		EquipmentID: e.ID,
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
		Status:      model.BookingPending,
		Notes:       s.sanitizer.Sanitize(in.Notes),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.bookings.Create(ctx, b); err != nil {
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	s.logger.Info("予約を作成しました",
		slog.String("booking_id", b.ID),
		slog.String("user_id", b.UserID),
		slog.String("equipment_id", b.EquipmentID),
	)
	return b, nil
}

// Update は予約を部分更新する。日時を変更した場合は自身を除いて空きを再確認する。
func (s *Service) Update(ctx context.Context, actor model.Actor, id string, in UpdateInput) (*model.Booking, error) {
	b, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canAccess(actor, b) {
		return nil, model.NewForbiddenError()
	}
	if in.Status != nil && !in.Status.Valid() {
		return nil, model.NewValidationError(map[string]string{"status": "予約状態が不正です。"})
	}
	if !actor.IsStaff() {
		if err := checkUserUpdate(b, in); err != nil {
			return nil, err
		}
	}

	if in.EquipmentID != nil && *in.EquipmentID != b.EquipmentID {
		e, err := s.findEquipment(ctx, *in.EquipmentID)
		if err != nil {
			return nil, err
		}
		b.EquipmentID = e.ID
	}
	if in.UserID != nil {
		b.UserID = *in.UserID
	}

	periodChanged := in.StartDate != nil || in.EndDate != nil || in.EquipmentID != nil
	if in.StartDate != nil {
		b.StartDate = *in.StartDate
	}
	if in.EndDate != nil {
		b.EndDate = *in.EndDate
	}
	if in.Notes != nil {
		b.Notes = s.sanitizer.Sanitize(*in.Notes)
	}
	if in.Status != nil {
		b.Status = *in.Status
	}

	if periodChanged {
		if err := s.checkPeriod(b.StartDate, b.EndDate); err != nil {
			return nil, err
		}
		if b.Status.Active() {
			if err := s.checkAvailability(ctx, b.EquipmentID, b.StartDate, b.EndDate, b.ID); err != nil {
				return nil, err
			}
		}
	}

	b.UpdatedAt = s.now()
	if err := s.bookings.Update(ctx, b); err != nil {
		return nil, fmt.Errorf("failed to update booking: %w", err)
	}

	s.logger.Info("予約を更新しました",
		slog.String("booking_id", b.ID),
		slog.String("status", string(b.Status)),
		slog.String("actor_id", actor.UserID),
	)
	return b, nil
}

// Delete は予約を削除する。一般ユーザーは承認待ちの自分の予約のみ削除できる。
func (s *Service) Delete(ctx context.Context, actor model.Actor, id string) error {
	b, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if !canAccess(actor, b) {
		return model.NewForbiddenError()
	}
	if !actor.IsStaff() && b.Status != model.BookingPending {
		return model.NewBookingNotEditableError("承認待ちの予約のみ削除できます")
	}

	deleted, err := s.bookings.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete booking: %w", err)
	}
	if !deleted {
		return model.NewBookingNotFoundError(id)
	}

	s.logger.Info("予約を削除しました",
		slog.String("booking_id", id),
		slog.String("actor_id", actor.UserID),
	)
	return nil
}

// checkUserUpdate は一般ユーザーが変更できる内容かを確認する。
func checkUserUpdate(b *model.Booking, in UpdateInput) error {
	if in.EquipmentID != nil {
		return model.NewBookingNotEditableError("equipment_idは変更できません")
	}
	if in.UserID != nil {
		return model.NewBookingNotEditableError("user_idは変更できません")
	}
	if in.Status != nil && *in.Status != model.BookingCancelled {
		return model.NewBookingNotEditableError("予約はキャンセルのみ可能です")
	}
	cancelling := in.Status != nil && *in.Status == model.BookingCancelled
	if b.Status != model.BookingPending && !cancelling {
		return model.NewBookingNotEditableError("承認待ちの予約のみ変更できます")
	}
	return nil
}

func canAccess(actor model.Actor, b *model.Booking) bool {
	return actor.IsStaff() || b.UserID == actor.UserID
}

func (s *Service) checkPeriod(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return model.NewInvalidBookingPeriodError("開始日時と終了日時は必須です")
	}
	if start.Before(s.now()) {
		return model.NewInvalidBookingPeriodError("開始日時を過去にすることはできません")
	}
	if !end.After(start) {
		return model.NewInvalidBookingPeriodError("終了日時は開始日時より後にしてください")
	}
	return nil
}

func (s *Service) checkAvailability(ctx context.Context, equipmentID string, start, end time.Time, excludeID string) error {
	ok, err := s.bookings.CheckAvailability(ctx, equipmentID, start, end, excludeID)
	if err != nil {
		return fmt.Errorf("failed to check availability: %w", err)
	}
	if !ok {
		return model.NewEquipmentUnavailableError()
	}
	return nil
}

func (s *Service) find(ctx context.Context, id string) (*model.Booking, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.NewBookingNotFoundError(id)
	}
	b, err := s.bookings.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}
	if b == nil {
		return nil, model.NewBookingNotFoundError(id)
	}
	return b, nil
}

func (s *Service) findEquipment(ctx context.Context, id string) (*model.Equipment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.NewEquipmentNotFoundError(id)
	}
	e, err := s.equipment.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find equipment: %w", err)
	}
	if e == nil {
		return nil, model.NewEquipmentNotFoundError(id)
	}
	return e, nil
}
