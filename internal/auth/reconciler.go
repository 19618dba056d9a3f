package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/rentcam/internal/model"
	"github.com/hitoshi/rentcam/internal/repository"
	"github.com/hitoshi/rentcam/internal/security"
	"github.com/hitoshi/rentcam/internal/telegram"
)

// reconcileAttempts は初回ログインの競合に負けた場合を含む照合の試行回数。
const reconcileAttempts = 2

// Reconciler は検証済みのTelegramアサーションをローカルのユーザーに対応付ける。
type Reconciler struct {
	users     repository.UserRepository
	links     repository.TelegramLinkRepository
	shadow    *ShadowGenerator
	sanitizer security.TextSanitizer
	logger    *slog.Logger
	now       func() time.Time
}

// NewReconciler はReconcilerを生成する。
func NewReconciler(
	users repository.UserRepository,
	links repository.TelegramLinkRepository,
	shadow *ShadowGenerator,
	sanitizer security.TextSanitizer,
	logger *slog.Logger,
) *Reconciler {
	return &Reconciler{
		users:     users,
		links:     links,
		shadow:    shadow,
		sanitizer: sanitizer,
		logger:    logger,
		now:       time.Now,
	}
}

// Reconcile は連携済みならその所有者を返し、未連携ならユーザーと連携を作成する。
// 所有者がいる場合はプロフィールスナップショットとauth_dateを更新する。
// 同じtelegram_idの初回ログインが同時に走った場合、負けた側はロールバック後に再検索し勝者を返す。
func (r *Reconciler) Reconcile(ctx context.Context, a *telegram.Assertion) (*model.User, error) {
	link := r.snapshot(a)

	for attempt := 1; attempt <= reconcileAttempts; attempt++ {
		existing, err := r.links.FindByTelegramID(ctx, a.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to find telegram link: %w", err)
		}

		if existing != nil && existing.UserID != nil {
			return r.refreshOwner(ctx, *existing.UserID, link)
		}

		user, err := r.newUser(a)
		if err != nil {
			return nil, err
		}

		created, err := r.users.CreateWithTelegramLink(ctx, user, link)
		if err != nil {
			return nil, fmt.Errorf("failed to create user and telegram link: %w", err)
		}
		if created {
			r.logger.Info("Telegramログインで新規ユーザーを作成しました",
				slog.String("user_id", user.ID),
				slog.Int64("telegram_id", a.ID),
			)
			return user, nil
		}

		r.logger.Info("初回ログインの競合を検出したため再検索します",
			slog.Int64("telegram_id", a.ID),
			slog.Int("attempt", attempt),
		)
	}

	return nil, fmt.Errorf("failed to reconcile telegram user %d: link was claimed concurrently", a.ID)
}

// Link はログイン中のユーザーにTelegramアカウントを連携する。
// 別ユーザーが所有している場合、またはユーザーが別のtelegram_idと連携済みの場合は
// TELEGRAM_ALREADY_LINKEDを返し、既存の所有関係は変更しない。
func (r *Reconciler) Link(ctx context.Context, userID string, a *telegram.Assertion) (*model.User, error) {
	user, err := r.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	if user.TelegramID != nil && *user.TelegramID != a.ID {
		return nil, model.NewTelegramAlreadyLinkedError()
	}

	link := r.snapshot(a)

	existing, err := r.links.FindByTelegramID(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to find telegram link: %w", err)
	}

	switch {
	case existing != nil && existing.OwnedBy(userID):
		return r.refreshOwner(ctx, userID, link)
	case existing != nil && existing.UserID != nil:
		r.logger.Warn("別ユーザーに連携済みのTelegramアカウントの連携を拒否しました",
			slog.String("user_id", userID),
			slog.Int64("telegram_id", a.ID),
		)
		return nil, model.NewTelegramAlreadyLinkedError()
	}

	if err := r.links.Claim(ctx, userID, link); err != nil {
		if errors.Is(err, repository.ErrLinkConflict) {
			return nil, model.NewTelegramAlreadyLinkedError()
		}
		return nil, fmt.Errorf("failed to claim telegram link: %w", err)
	}

	r.logger.Info("Telegramアカウントを連携しました",
		slog.String("user_id", userID),
		slog.Int64("telegram_id", a.ID),
	)
	return r.reload(ctx, userID)
}

// Disconnect はユーザーのTelegram連携を削除し、認証状態を解除する。
func (r *Reconciler) Disconnect(ctx context.Context, userID string) error {
	deleted, err := r.links.DeleteByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to delete telegram link: %w", err)
	}
	if !deleted {
		return model.NewTelegramNotLinkedError()
	}

	r.logger.Info("Telegram連携を解除しました", slog.String("user_id", userID))
	return nil
}

func (r *Reconciler) refreshOwner(ctx context.Context, userID string, link *model.TelegramLink) (*model.User, error) {
	if err := r.links.RefreshProfile(ctx, link); err != nil {
		return nil, fmt.Errorf("failed to refresh telegram link: %w", err)
	}
	return r.reload(ctx, userID)
}

func (r *Reconciler) reload(ctx context.Context, userID string) (*model.User, error) {
	user, err := r.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

func (r *Reconciler) newUser(a *telegram.Assertion) (*model.User, error) {
	creds, err := r.shadow.Generate(a.ID)
	if err != nil {
		return nil, err
	}
	now := r.now()
	return &model.User{
		ID:           uuid.New().String(),
		Email:        creds.Email,
		FullName:     r.sanitizer.Sanitize(a.DisplayName()),
		Role:         model.RoleUser,
		PasswordHash: creds.PasswordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// snapshot はアサーションから保存用の連携レコードを作る。表示用の文字列はサニタイズする。
func (r *Reconciler) snapshot(a *telegram.Assertion) *model.TelegramLink {
	return &model.TelegramLink{
		TelegramID: a.ID,
		Username:   r.sanitizer.Sanitize(a.Username),
		FirstName:  r.sanitizer.Sanitize(a.FirstName),
		LastName:   r.sanitizer.Sanitize(a.LastName),
		PhotoURL:   a.PhotoURL,
		AuthDate:   a.AuthDate,
		Status:     model.LinkStatusLinked,
	}
}
