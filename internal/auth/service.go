// Package auth はTelegramログインの照合、セッショントークンの発行、シャドウ認証情報の生成を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/rentcam/internal/model"
	"github.com/hitoshi/rentcam/internal/telegram"
)

// ログインフロー。メトリクスのラベルに使う。
const (
	FlowWidget   = "widget"
	FlowCallback = "callback"
	FlowLink     = "link"
)

// LoginObserver はログイン結果を記録する。
type LoginObserver interface {
	RecordLogin(flow, result string)
}

// LoginResult はログイン成功時の結果。
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      *model.User
}

// Service は認証に関するビジネスロジックを提供する。
// 署名検証、鮮度確認、照合、セッション発行の順に処理し、いずれかで失敗すれば以降は実行しない。
type Service struct {
	verifier   telegram.Verifier
	reconciler *Reconciler
	issuer     *SessionIssuer
	observer   LoginObserver
	logger     *slog.Logger
	now        func() time.Time
}

// NewService はServiceを生成する。observerはnil可。
func NewService(
	verifier telegram.Verifier,
	reconciler *Reconciler,
	issuer *SessionIssuer,
	observer LoginObserver,
	logger *slog.Logger,
) *Service {
	return &Service{
		verifier:   verifier,
		reconciler: reconciler,
		issuer:     issuer,
		observer:   observer,
		logger:     logger,
		now:        time.Now,
	}
}

// Login はアサーションを検証し、ユーザーを照合してセッショントークンを発行する。
func (s *Service) Login(ctx context.Context, flow string, a *telegram.Assertion) (*LoginResult, error) {
	result, err := s.login(ctx, a)
	s.record(flow, err)
	return result, err
}

func (s *Service) login(ctx context.Context, a *telegram.Assertion) (*LoginResult, error) {
	if err := s.authenticate(a); err != nil {
		return nil, err
	}

	user, err := s.reconciler.Reconcile(ctx, a)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.issuer.Issue(Principal{UserID: user.ID, Email: user.Email, Role: user.Role})
	if err != nil {
		return nil, fmt.Errorf("failed to issue session: %w", err)
	}

	s.logger.Info("Telegramでログインしました",
		slog.String("user_id", user.ID),
		slog.Int64("telegram_id", a.ID),
	)
	return &LoginResult{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

// LinkAccount はアサーションを検証し、ログイン中のユーザーに連携する。
func (s *Service) LinkAccount(ctx context.Context, userID string, a *telegram.Assertion) (*model.User, error) {
	user, err := s.linkAccount(ctx, userID, a)
	s.record(FlowLink, err)
	return user, err
}

func (s *Service) linkAccount(ctx context.Context, userID string, a *telegram.Assertion) (*model.User, error) {
	if err := s.authenticate(a); err != nil {
		return nil, err
	}
	return s.reconciler.Link(ctx, userID, a)
}

// Disconnect はTelegram連携を解除する。
func (s *Service) Disconnect(ctx context.Context, userID string) error {
	return s.reconciler.Disconnect(ctx, userID)
}

// ParseSession はセッショントークンを検証する。
func (s *Service) ParseSession(token string) (*Claims, error) {
	return s.issuer.Parse(token)
}

// SessionTTL はセッションの有効期間を返す。
func (s *Service) SessionTTL() time.Duration {
	return s.issuer.TTL()
}

// authenticate は署名と鮮度を確認する。失敗はリトライしない。
func (s *Service) authenticate(a *telegram.Assertion) error {
	ok, err := telegram.VerifyAssertion(s.verifier, a)
	if err != nil {
		return err
	}
	if !ok {
		s.logger.Warn("Telegram認証データの署名が一致しません",
			slog.Int64("telegram_id", a.ID),
			slog.String("scheme", s.verifier.Scheme()),
		)
		return model.NewInvalidSignatureError()
	}

	if err := telegram.CheckFreshness(a.AuthDate, s.now()); err != nil {
		s.logger.Info("期限切れのTelegram認証データを拒否しました",
			slog.Int64("telegram_id", a.ID),
			slog.Int64("auth_date", a.AuthDate),
		)
		return err
	}
	return nil
}

func (s *Service) record(flow string, err error) {
	if s.observer == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			result = strings.ToLower(apiErr.Code)
		}
	}
	s.observer.RecordLogin(flow, result)
}
