// Package user はプロフィールの参照と更新のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/rentcam/internal/model"
	"github.com/hitoshi/rentcam/internal/repository"
	"github.com/hitoshi/rentcam/internal/security"
)

// maxFullNameLength は氏名の最大文字数。
const maxFullNameLength = 100

var emailValidator = validator.New()

// ProfileUpdate はプロフィールの部分更新内容。nilのフィールドは変更しない。
type ProfileUpdate struct {
	FullName *string
	Email    *string
}

// Service はプロフィールのサービス層。
// role・is_verified・telegram_idはここでは変更できない。
type Service struct {
	userRepo  repository.UserRepository
	sanitizer security.TextSanitizer
	logger    *slog.Logger
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository, sanitizer security.TextSanitizer, logger *slog.Logger) *Service {
	return &Service{
		userRepo:  userRepo,
		sanitizer: sanitizer,
		logger:    logger,
		now:       time.Now,
	}
}

// Get は現在のユーザーを返す。
func (s *Service) Get(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// UpdateProfile は氏名とメールアドレスを更新する。
func (s *Service) UpdateProfile(ctx context.Context, userID string, in ProfileUpdate) (*model.User, error) {
	user, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	fields := map[string]string{}
	if in.FullName != nil {
		name := s.sanitizer.Sanitize(*in.FullName)
		switch {
		case name == "":
			fields["full_name"] = "氏名を入力してください。"
		case len([]rune(name)) > maxFullNameLength:
			fields["full_name"] = fmt.Sprintf("氏名は%d文字以内で入力してください。", maxFullNameLength)
		default:
			user.FullName = name
		}
	}
	if in.Email != nil {
		email, ok := normalizeEmail(*in.Email)
		if !ok {
			fields["email"] = "メールアドレスの形式が正しくありません。"
		} else {
			user.Email = email
		}
	}
	if len(fields) > 0 {
		return nil, model.NewValidationError(fields)
	}

	user.UpdatedAt = s.now()
	if err := s.userRepo.UpdateProfile(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewDuplicateEmailError()
		}
		return nil, fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}

	s.logger.Info("プロフィールを更新しました",
		slog.String("user_id", userID),
	)
	return user, nil
}

// normalizeEmail はアドレス部分のみの形式か確認し、小文字化して返す。
func normalizeEmail(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if err := emailValidator.Var(raw, "required,max=254,email"); err != nil {
		return "", false
	}
	return strings.ToLower(raw), true
}
