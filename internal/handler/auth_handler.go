package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/rentcam/internal/auth"
	"github.com/hitoshi/rentcam/internal/middleware"
	"github.com/hitoshi/rentcam/internal/model"
	"github.com/hitoshi/rentcam/internal/telegram"
)

// ログイン失敗時にリダイレクト先へ渡すエラー理由。
const (
	loginErrorMissingData = "missing_telegram_data"
	loginErrorInvalidData = "invalid_telegram_data"
	loginErrorExpiredData = "expired_telegram_data"
	loginErrorServer      = "server_error"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Login(ctx context.Context, flow string, a *telegram.Assertion) (*auth.LoginResult, error)
	LinkAccount(ctx context.Context, userID string, a *telegram.Assertion) (*model.User, error)
	Disconnect(ctx context.Context, userID string) error
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	AppURL        string
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はTelegramログイン関連のHTTPハンドラー。
type AuthHandler struct {
	service   AuthServiceInterface
	config    AuthHandlerConfig
	validator *requestValidator
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service:   service,
		config:    config,
		validator: newRequestValidator(),
	}
}

// loginResponse はログイン成功時のレスポンス。
type loginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      userResponse `json:"user"`
}

// Login はLogin WidgetのJSONアサーションでログインする。
// POST /api/auth/telegram
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var a telegram.Assertion
	if apiErr := decodeJSON(w, r, &a); apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}
	if apiErr := h.validator.Assertion(&a); apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}

	result, err := h.service.Login(r.Context(), auth.FlowWidget, &a)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	h.setSessionCookie(w, result.Token)
	writeData(w, http.StatusOK, loginResponse{
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
		User:      toUserResponse(result.User),
	})
}

// Callback はクエリのアサーションでログインし、プロフィール画面へリダイレクトする。
// 失敗した場合はログイン画面へ理由付きでリダイレクトする。
// GET /api/auth/telegram-callback, GET /api/auth/telegram-redirect
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	a, err := telegram.ParseQuery(r.URL.Query())
	if err != nil {
		reason := loginErrorInvalidData
		if errors.Is(err, telegram.ErrMissingData) {
			reason = loginErrorMissingData
		}
		slog.Warn("Telegramのコールバックを解析できません",
			slog.String("reason", reason),
			slog.String("error", err.Error()),
		)
		h.redirectLoginError(w, r, reason)
		return
	}
	if apiErr := h.validator.Assertion(a); apiErr != nil {
		h.redirectLoginError(w, r, loginErrorInvalidData)
		return
	}

	result, err := h.service.Login(r.Context(), auth.FlowCallback, a)
	if err != nil {
		reason := loginErrorReason(err)
		if reason == loginErrorServer {
			slog.Error("Telegramログインに失敗しました",
				slog.Int64("telegram_id", a.ID),
				slog.String("error", err.Error()),
			)
		}
		h.redirectLoginError(w, r, reason)
		return
	}

	h.setSessionCookie(w, result.Token)
	http.Redirect(w, r, h.appPath("/profile"), http.StatusSeeOther)
}

// Cancel はログインのキャンセル時にredirect_urlへ戻す。サイト内の相対パスのみ受け付ける。
// GET /api/auth/telegram-cancel
func (h *AuthHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, safeRedirectPath(r.URL.Query().Get("redirect_url")), http.StatusSeeOther)
}

// Link はログイン中のユーザーにTelegramアカウントを連携する。
// POST /api/auth/telegram/link
func (h *AuthHandler) Link(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var a telegram.Assertion
	if apiErr := decodeJSON(w, r, &a); apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}
	if apiErr := h.validator.Assertion(&a); apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}

	user, err := h.service.LinkAccount(r.Context(), actor.UserID, &a)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]interface{}{"user": toUserResponse(user)})
}

// Disconnect はTelegram連携を解除する。
// DELETE /api/auth/telegram/disconnect
func (h *AuthHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	if err := h.service.Disconnect(r.Context(), actor.UserID); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]bool{"disconnected": true})
}

// Logout はセッションCookieを削除する。トークンはステートレスのため失効処理はない。
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    token,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) redirectLoginError(w http.ResponseWriter, r *http.Request, reason string) {
	http.Redirect(w, r, h.appPath("/auth/login?error="+url.QueryEscape(reason)), http.StatusSeeOther)
}

func (h *AuthHandler) appPath(path string) string {
	return strings.TrimRight(h.config.AppURL, "/") + path
}

// loginErrorReason はログイン失敗のエラーをリダイレクト用の理由に変換する。
func loginErrorReason(err error) string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case model.ErrCodeInvalidSignature, model.ErrCodeInvalidTelegramData:
			return loginErrorInvalidData
		case model.ErrCodeAuthExpired:
			return loginErrorExpiredData
		}
	}
	return loginErrorServer
}

// safeRedirectPath は"/"で始まるサイト内パスのみを返す。それ以外は"/"。
// "//host"や"/\host"のようなスキーム相対URLは拒否する。
func safeRedirectPath(raw string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") {
		return "/"
	}
	if strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, `/\`) {
		return "/"
	}
	if strings.ContainsAny(raw, "\r\n") {
		return "/"
	}
	return raw
}
