// Package verification はTelegram連携用のワンタイム認証コードの発行と照合を提供する。
package verification

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/rentcam/internal/model"
	"github.com/hitoshi/rentcam/internal/repository"
	"github.com/hitoshi/rentcam/internal/telegram"
)

const (
	// DefaultWebCodeTTL はサイトで発行するコードの有効期間。
	DefaultWebCodeTTL = 24 * time.Hour
	// DefaultBotCodeTTL はボットで発行するコードの有効期間。
	DefaultBotCodeTTL = 30 * time.Minute
)

// Config は認証コードの設定。
type Config struct {
	WebCodeTTL time.Duration
	BotCodeTTL time.Duration
}

// Status は認証状態と最新のコード。
type Status struct {
	IsVerified bool
	TelegramID *int64
	Latest     *model.VerificationCode
}

// Service は認証コードのビジネスロジックを提供する。
type Service struct {
	codes  repository.VerificationRepository
	links  repository.TelegramLinkRepository
	users  repository.UserRepository
	logger *slog.Logger
	config Config
	now    func() time.Time
	random io.Reader
}

// NewService はServiceを生成する。
func NewService(
	codes repository.VerificationRepository,
	links repository.TelegramLinkRepository,
	users repository.UserRepository,
	logger *slog.Logger,
	config Config,
) *Service {
	if config.WebCodeTTL <= 0 {
		config.WebCodeTTL = DefaultWebCodeTTL
	}
	if config.BotCodeTTL <= 0 {
		config.BotCodeTTL = DefaultBotCodeTTL
	}
	return &Service{
		codes:  codes,
		links:  links,
		users:  users,
		logger: logger,
		config: config,
		now:    time.Now,
	}
}

// BotCodeTTL はボットで発行するコードの有効期間を返す。
func (s *Service) BotCodeTTL() time.Duration {
	return s.config.BotCodeTTL
}

// IssueForUser はログイン中のユーザー向けにコードを発行する。既存のコードは削除する。
// 認証済みのユーザーにはALREADY_VERIFIEDを返す。
func (s *Service) IssueForUser(ctx context.Context, userID string) (*model.VerificationCode, error) {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.IsVerified {
		return nil, model.NewAlreadyVerifiedError()
	}

	code, err := s.newCode(s.config.WebCodeTTL)
	if err != nil {
		return nil, err
	}
	code.UserID = &user.ID

	if err := s.codes.ReplaceForUser(ctx, code); err != nil {
		return nil, fmt.Errorf("failed to save verification code: %w", err)
	}

	s.logger.Info("認証コードを発行しました",
		slog.String("user_id", userID),
		slog.Time("expires_at", code.ExpiresAt),
	)
	return code, nil
}

// Status はユーザーの認証状態と最新のコードを返す。
func (s *Service) Status(ctx context.Context, userID string) (*Status, error) {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	latest, err := s.codes.FindLatestByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find verification code: %w", err)
	}

	return &Status{IsVerified: user.IsVerified, TelegramID: user.TelegramID, Latest: latest}, nil
}

// ConfirmFromWeb はボットで発行されたコードをサイトで入力した場合に、
// コードのtelegram_idをログイン中のユーザーに連携する。
func (s *Service) ConfirmFromWeb(ctx context.Context, userID, rawCode string) (*model.User, error) {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	vc, err := s.findActive(ctx, rawCode)
	if err != nil {
		return nil, err
	}
	if vc == nil || vc.TelegramID == nil || (vc.UserID != nil && *vc.UserID != userID) {
		return nil, model.NewCodeExpiredError()
	}
	telegramID := *vc.TelegramID

	if user.TelegramID != nil && *user.TelegramID != telegramID {
		return nil, model.NewTelegramAlreadyLinkedError()
	}

	link, err := s.links.FindByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, fmt.Errorf("failed to find telegram link: %w", err)
	}
	if link != nil && link.UserID != nil && !link.OwnedBy(userID) {
		return nil, model.NewTelegramAlreadyLinkedError()
	}
	if link == nil {
		link = &model.TelegramLink{TelegramID: telegramID}
	}

	if err := s.codes.Consume(ctx, vc.ID, userID, link); err != nil {
		switch {
		case errors.Is(err, repository.ErrCodeUnavailable):
			return nil, model.NewCodeExpiredError()
		case errors.Is(err, repository.ErrLinkConflict):
			return nil, model.NewTelegramAlreadyLinkedError()
		}
		return nil, fmt.Errorf("failed to consume verification code: %w", err)
	}

	s.logger.Info("サイトで認証コードを確認しTelegramを連携しました",
		slog.String("user_id", userID),
		slog.Int64("telegram_id", telegramID),
	)
	return s.findUser(ctx, userID)
}

// RegisterPending は/startの送信者に対し所有者のない連携レコードを作成する。
func (s *Service) RegisterPending(ctx context.Context, link *model.TelegramLink) error {
	created, err := s.links.CreatePending(ctx, link)
	if err != nil {
		return fmt.Errorf("failed to create pending telegram link: %w", err)
	}
	if created {
		s.logger.Info("pending連携を作成しました", slog.Int64("telegram_id", link.TelegramID))
	}
	return nil
}

// IssueForTelegram は/verifyの送信者向けにコードを発行する。
// 連携に所有者がいる場合、コードの所有者もそのユーザーとする。
func (s *Service) IssueForTelegram(ctx context.Context, link *model.TelegramLink) (*model.VerificationCode, error) {
	existing, err := s.links.FindByTelegramID(ctx, link.TelegramID)
	if err != nil {
		return nil, fmt.Errorf("failed to find telegram link: %w", err)
	}
	if existing == nil {
		if err := s.RegisterPending(ctx, link); err != nil {
			return nil, err
		}
	}

	code, err := s.newCode(s.config.BotCodeTTL)
	if err != nil {
		return nil, err
	}
	tid := link.TelegramID
	code.TelegramID = &tid
	if existing != nil && existing.UserID != nil {
		owner := *existing.UserID
		code.UserID = &owner
	}

	if err := s.codes.ReplaceForTelegram(ctx, code); err != nil {
		return nil, fmt.Errorf("failed to save verification code: %w", err)
	}
	return code, nil
}

// ConsumeFromBot はボットで受け取ったコードを照合する。
// 所有者のあるコードは消費して送信者のTelegramを連携し、所有者のないコードはサイトでの入力を求める。
// 照合に失敗した場合は何も変更しない。
func (s *Service) ConsumeFromBot(ctx context.Context, rawCode string, link *model.TelegramLink) (model.CodeOutcome, error) {
	vc, err := s.findActive(ctx, rawCode)
	if err != nil {
		return "", err
	}
	if vc == nil {
		return model.CodeInvalid, nil
	}
	if vc.UserID == nil {
		return model.CodeNeedsWeb, nil
	}
	ownerID := *vc.UserID

	existing, err := s.links.FindByTelegramID(ctx, link.TelegramID)
	if err != nil {
		return "", fmt.Errorf("failed to find telegram link: %w", err)
	}
	if existing != nil && existing.UserID != nil && !existing.OwnedBy(ownerID) {
		return model.CodeConflict, nil
	}

	owner, err := s.users.FindByID(ctx, ownerID)
	if err != nil {
		return "", fmt.Errorf("failed to find user: %w", err)
	}
	if owner == nil {
		return model.CodeInvalid, nil
	}
	if owner.TelegramID != nil && *owner.TelegramID != link.TelegramID {
		return model.CodeConflict, nil
	}

	if err := s.codes.Consume(ctx, vc.ID, ownerID, link); err != nil {
		switch {
		case errors.Is(err, repository.ErrCodeUnavailable):
			return model.CodeInvalid, nil
		case errors.Is(err, repository.ErrLinkConflict):
			return model.CodeConflict, nil
		}
		return "", fmt.Errorf("failed to consume verification code: %w", err)
	}
	return model.CodeLinked, nil
}

func (s *Service) findUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// findActive は形式が正しいコードのみ検索する。見つからない場合はnilを返す。
func (s *Service) findActive(ctx context.Context, rawCode string) (*model.VerificationCode, error) {
	code := NormalizeCode(rawCode)
	if !ValidFormat(code) {
		return nil, nil
	}
	vc, err := s.codes.FindActiveByCode(ctx, code, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to find verification code: %w", err)
	}
	return vc, nil
}

func (s *Service) newCode(ttl time.Duration) (*model.VerificationCode, error) {
	value, err := GenerateCode(s.random)
	if err != nil {
		return nil, fmt.Errorf("failed to generate verification code: %w", err)
	}
	now := s.now()
	return &model.VerificationCode{
		ID:        uuid.New().String(),
		Code:      value,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}, nil
}

var _ telegram.CommandService = (*Service)(nil)
