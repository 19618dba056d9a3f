package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/rentcam/internal/model"
	"github.com/hitoshi/rentcam/internal/telegram"
	"github.com/hitoshi/rentcam/internal/verification"
)

// maxWebhookBodySize はWebhookで受け付ける更新の上限。
const maxWebhookBodySize = 256 << 10

// UpdateHandler はWebhookの更新を処理する。
type UpdateHandler interface {
	Handle(ctx context.Context, update *telegram.Update)
}

// BotInfoServiceInterface はボット情報とWebhook設定の操作。
type BotInfoServiceInterface interface {
	Lookup(ctx context.Context, botName string) (*telegram.BotInfo, error)
	SetupWebhook(ctx context.Context, appURL, secretToken string) (*telegram.WebhookSetupResult, error)
}

// VerificationServiceInterface は認証コードの操作。
type VerificationServiceInterface interface {
	IssueForUser(ctx context.Context, userID string) (*model.VerificationCode, error)
	Status(ctx context.Context, userID string) (*verification.Status, error)
	ConfirmFromWeb(ctx context.Context, userID, code string) (*model.User, error)
}

// TelegramHandlerConfig はTelegramハンドラーの設定。
type TelegramHandlerConfig struct {
	AppURL        string
	WebhookSecret string
}

// TelegramHandler はWebhook、ボット情報、認証コードのHTTPハンドラー。
type TelegramHandler struct {
	updates      UpdateHandler
	botInfo      BotInfoServiceInterface
	verification VerificationServiceInterface
	config       TelegramHandlerConfig
	validator    *requestValidator
}

// NewTelegramHandler はTelegramHandlerを生成する。
func NewTelegramHandler(
	updates UpdateHandler,
	botInfo BotInfoServiceInterface,
	verification VerificationServiceInterface,
	config TelegramHandlerConfig,
) *TelegramHandler {
	return &TelegramHandler{
		updates:      updates,
		botInfo:      botInfo,
		verification: verification,
		config:       config,
		validator:    newRequestValidator(),
	}
}

// Webhook はTelegramからの更新を受信する。
// シークレットが一致しない場合は401を返し、それ以外は処理結果によらず200を返す。
// POST /api/telegram/webhook
func (h *TelegramHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	if !telegram.VerifyWebhookSecret(r.Header.Get(telegram.SecretHeader), h.config.WebhookSecret) {
		slog.Warn("Webhookのシークレットが一致しません", slog.String("remote_addr", r.RemoteAddr))
		writeAPIError(w, model.NewUnauthorizedError())
		return
	}

	var update telegram.Update
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		// Telegramは200以外を再送するため、解析できない更新も受理する
		slog.Warn("Webhookの更新を解析できません", slog.String("error", err.Error()))
		writeData(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}

	h.updates.Handle(r.Context(), &update)
	writeData(w, http.StatusOK, map[string]bool{"ok": true})
}

// BotInfo はボット名に対応するボットIDを返す。
// GET /api/telegram/bot-info?bot_name=xxx
func (h *TelegramHandler) BotInfo(w http.ResponseWriter, r *http.Request) {
	botName := strings.TrimSpace(r.URL.Query().Get("bot_name"))
	if botName == "" {
		writeAPIError(w, model.NewInvalidRequestError("bot_nameは必須です"))
		return
	}

	info, err := h.botInfo.Lookup(r.Context(), botName)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, info)
}

// SetupWebhook はWebhookを{APP_URL}/api/telegram/webhookに登録する。
// POST /api/telegram/setup
func (h *TelegramHandler) SetupWebhook(w http.ResponseWriter, r *http.Request) {
	result, err := h.botInfo.SetupWebhook(r.Context(), h.config.AppURL, h.config.WebhookSecret)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, result)
}

// issuedCodeResponse は発行した認証コード。
type issuedCodeResponse struct {
	VerificationCode string    `json:"verification_code"`
	ExpiresAt        time.Time `json:"expires_at"`
}

// IssueCode はログイン中のユーザー向けに認証コードを発行する。
// POST /api/telegram/verification
func (h *TelegramHandler) IssueCode(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	code, err := h.verification.IssueForUser(r.Context(), actor.UserID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, issuedCodeResponse{
		VerificationCode: code.Code,
		ExpiresAt:        code.ExpiresAt,
	})
}

// verificationStatusResponse は認証状態。
type verificationStatusResponse struct {
	IsVerified   bool                  `json:"is_verified"`
	TelegramID   *int64                `json:"telegram_id"`
	Verification *verificationResponse `json:"verification"`
}

// VerificationStatus は認証状態と最新の認証コードを返す。
// GET /api/telegram/verification
func (h *TelegramHandler) VerificationStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	status, err := h.verification.Status(r.Context(), actor.UserID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, verificationStatusResponse{
		IsVerified:   status.IsVerified,
		TelegramID:   status.TelegramID,
		Verification: toVerificationResponse(status.Latest),
	})
}

// confirmCodeRequest はボットで発行したコードの確認リクエスト。
type confirmCodeRequest struct {
	Code string `json:"code" validate:"required,max=16"`
}

// ConfirmCode はボットで発行したコードをサイトで入力してTelegramを連携する。
// POST /api/telegram/verification/confirm
func (h *TelegramHandler) ConfirmCode(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req confirmCodeRequest
	if apiErr := decodeJSON(w, r, &req); apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}
	if apiErr := h.validator.Struct(&req); apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}

	user, err := h.verification.ConfirmFromWeb(r.Context(), actor.UserID, req.Code)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]interface{}{"user": toUserResponse(user)})
}
