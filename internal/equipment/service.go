// Package equipment は機材カタログのビジネスロジックを提供する。
package equipment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/rentcam/internal/model"
	"github.com/hitoshi/rentcam/internal/repository"
	"github.com/hitoshi/rentcam/internal/security"
)

// CreateInput は機材の作成内容。
type CreateInput struct {
	Name           string
	Description    string
	Category       model.EquipmentCategory
	SerialNumber   string
	IsAvailable    *bool
	ImageURL       string
	Specifications json.RawMessage
}

// UpdateInput は機材の部分更新内容。nilのフィールドは変更しない。
// SerialNumberに空文字を指定するとシリアル番号を削除する。
type UpdateInput struct {
	Name           *string
	Description    *string
	Category       *model.EquipmentCategory
	SerialNumber   *string
	IsAvailable    *bool
	ImageURL       *string
	Specifications json.RawMessage
}

// ListResult は機材一覧の結果。
type ListResult struct {
	Items  []*model.Equipment
	Total  int
	Limit  int
	Offset int
}

// Detail は機材と有効な予約の一覧。
type Detail struct {
	Equipment *model.Equipment
	Bookings  []*model.Booking
}

// Service は機材カタログのサービス層。
type Service struct {
	repo      repository.EquipmentRepository
	bookings  repository.BookingRepository
	guard     security.URLGuard
	sanitizer security.TextSanitizer
	logger    *slog.Logger
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	repo repository.EquipmentRepository,
	bookings repository.BookingRepository,
	guard security.URLGuard,
	sanitizer security.TextSanitizer,
	logger *slog.Logger,
) *Service {
	return &Service{
		repo:      repo,
		bookings:  bookings,
		guard:     guard,
		sanitizer: sanitizer,
		logger:    logger,
		now:       time.Now,
	}
}

// List は条件に合う機材を名前順で返す。
func (s *Service) List(ctx context.Context, filter model.EquipmentFilter) (*ListResult, error) {
	if filter.Category != "" && !filter.Category.Valid() {
		return nil, model.NewValidationError(map[string]string{"category": categoryMessage()})
	}
	filter.Limit, filter.Offset = model.ClampPage(filter.Limit, filter.Offset)
	filter.Search = strings.TrimSpace(filter.Search)

	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list equipment: %w", err)
	}
	if items == nil {
		items = []*model.Equipment{}
	}
	return &ListResult{Items: items, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

// Get は機材と承認待ち・承認済みの予約を返す。
func (s *Service) Get(ctx context.Context, id string) (*Detail, error) {
	e, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	bookings, err := s.bookings.ListActiveByEquipment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	if bookings == nil {
		bookings = []*model.Booking{}
	}
	return &Detail{Equipment: e, Bookings: bookings}, nil
}

// Create は機材を登録する。
func (s *Service) Create(ctx context.Context, in CreateInput) (*model.Equipment, error) {
	now := s.now()
	e := &model.Equipment{
		ID:             uuid.New().String(),
		Name:           s.sanitizer.Sanitize(in.Name),
		Description:    s.sanitizer.Sanitize(in.Description),
		Category:       in.Category,
		SerialNumber:   serialPtr(in.SerialNumber),
		IsAvailable:    true,
		ImageURL:       strings.TrimSpace(in.ImageURL),
		Specifications: in.Specifications,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if in.IsAvailable != nil {
		e.IsAvailable = *in.IsAvailable
	}

	if err := s.validate(e); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, e); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewDuplicateSerialError(in.SerialNumber)
		}
		return nil, fmt.Errorf("failed to create equipment: %w", err)
	}

	s.logger.Info("機材を登録しました",
		slog.String("equipment_id", e.ID),
		slog.String("category", string(e.Category)),
	)
	return e, nil
}

// Update は機材を部分更新する。
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*model.Equipment, error) {
	e, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		e.Name = s.sanitizer.Sanitize(*in.Name)
	}
	if in.Description != nil {
		e.Description = s.sanitizer.Sanitize(*in.Description)
	}
	if in.Category != nil {
		e.Category = *in.Category
	}
	if in.SerialNumber != nil {
		e.SerialNumber = serialPtr(*in.SerialNumber)
	}
	if in.IsAvailable != nil {
		e.IsAvailable = *in.IsAvailable
	}
	if in.ImageURL != nil {
		e.ImageURL = strings.TrimSpace(*in.ImageURL)
	}
	if in.Specifications != nil {
		e.Specifications = in.Specifications
	}
	e.UpdatedAt = s.now()

	if err := s.validate(e); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, e); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			serial := ""
			if e.SerialNumber != nil {
				serial = *e.SerialNumber
			}
			return nil, model.NewDuplicateSerialError(serial)
		}
		return nil, fmt.Errorf("failed to update equipment: %w", err)
	}
	return e, nil
}

// Delete は機材を削除する。承認待ち・承認済みの予約がある場合はEQUIPMENT_IN_USEを返す。
func (s *Service) Delete(ctx context.Context, id string) error {
	active, err := s.bookings.CountActiveByEquipment(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to count bookings: %w", err)
	}
	if active > 0 {
		return model.NewEquipmentInUseError()
	}

	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrReferenced) {
			return model.NewEquipmentInUseError()
		}
		return fmt.Errorf("failed to delete equipment: %w", err)
	}
	if !deleted {
		return model.NewEquipmentNotFoundError(id)
	}

	s.logger.Info("機材を削除しました", slog.String("equipment_id", id))
	return nil
}

func (s *Service) find(ctx context.Context, id string) (*model.Equipment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.NewEquipmentNotFoundError(id)
	}
	e, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find equipment: %w", err)
	}
	if e == nil {
		return nil, model.NewEquipmentNotFoundError(id)
	}
	return e, nil
}

// validate はサニタイズ後の値を検証する。
func (s *Service) validate(e *model.Equipment) error {
	fields := map[string]string{}
	if e.Name == "" {
		fields["name"] = "機材名は必須です。"
	}
	if !e.Category.Valid() {
		fields["category"] = categoryMessage()
	}
	if e.ImageURL != "" {
		if err := s.guard.ValidatePublicURL(e.ImageURL); err != nil {
			fields["image_url"] = "公開されているhttp(s)のURLを指定してください。"
		}
	}
	if len(e.Specifications) > 0 {
		var obj map[string]any
		if err := json.Unmarshal(e.Specifications, &obj); err != nil {
			fields["specifications"] = "JSONオブジェクトを指定してください。"
		}
	}
	if len(fields) > 0 {
		return model.NewValidationError(fields)
	}
	return nil
}

func categoryMessage() string {
	names := make([]string, len(model.EquipmentCategories))
	for i, c := range model.EquipmentCategories {
		names[i] = string(c)
	}
	return "カテゴリは次のいずれかを指定してください: " + strings.Join(names, ", ")
}

func serialPtr(serial string) *string {
	serial = strings.TrimSpace(serial)
	if serial == "" {
		return nil
	}
	return &serial
}
