package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// BotAPI はBot APIクライアントのインターフェース。テストでモックに差し替える。
type BotAPI interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	AnswerCallbackQuery(ctx context.Context, callbackQueryID, text string) error
	GetMe(ctx context.Context) (*BotUser, error)
	SetWebhook(ctx context.Context, config WebhookConfig) error
	GetWebhookInfo(ctx context.Context) (*WebhookInfo, error)
}

// CacheObserver はキャッシュのヒット/ミスを受け取る。
type CacheObserver interface {
	RecordCacheLookup(hit bool)
}

// BotInfo はbot-infoエンドポイントの応答内容。
type BotInfo struct {
	BotID     int64  `json:"bot_id"`
	BotName   string `json:"bot_name"`
	FromCache bool   `json:"from_cache"`
}

// WebhookSetupResult はWebhook設定前後の状態。
type WebhookSetupResult struct {
	WebhookURL string       `json:"webhook_url"`
	Previous   *WebhookInfo `json:"previous"`
	Current    *WebhookInfo `json:"current"`
}

// BotInfoService はボットIDの取得とWebhookの設定を提供する。
type BotInfoService struct {
	api      BotAPI
	cache    *BotIDCache
	observer CacheObserver
	logger   *slog.Logger

	// BotUsername はTELEGRAM_BOT_USERNAMEで設定されたボット名。空の場合はgetMeの結果と比較する。
	BotUsername string
}

// NewBotInfoService はBotInfoServiceを生成する。observerはnil可。
func NewBotInfoService(api BotAPI, cache *BotIDCache, observer CacheObserver, logger *slog.Logger) *BotInfoService {
	return &BotInfoService{api: api, cache: cache, observer: observer, logger: logger}
}

// Lookup はボット名に対応するボットIDを返す。キャッシュにない場合はgetMeで取得して保存する。
func (s *BotInfoService) Lookup(ctx context.Context, botName string) (*BotInfo, error) {
	botName = strings.TrimPrefix(strings.TrimSpace(botName), "@")

	if id, ok := s.cache.Get(botName); ok {
		s.record(true)
		return &BotInfo{BotID: id, BotName: botName, FromCache: true}, nil
	}
	s.record(false)

	me, err := s.api.GetMe(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get bot info: %w", err)
	}
	configured := strings.TrimPrefix(strings.TrimSpace(s.BotUsername), "@")
	if configured != "" && me.Username != "" && !strings.EqualFold(me.Username, configured) {
		s.logger.Error("ボットトークンのボットが設定されたユーザー名と一致しません",
			slog.String("configured_bot", configured),
			slog.String("token_bot", me.Username),
		)
	}
	if configured == "" {
		configured = me.Username
	}
	if configured != "" && !strings.EqualFold(configured, botName) {
		s.logger.Warn("要求されたボット名が設定中のボットと一致しません",
			slog.String("bot_name", botName),
			slog.String("configured_bot", configured),
		)
	}

	s.cache.Set(botName, me.ID)
	return &BotInfo{BotID: me.ID, BotName: botName, FromCache: false}, nil
}

func (s *BotInfoService) record(hit bool) {
	if s.observer != nil {
		s.observer.RecordCacheLookup(hit)
	}
}

// SetupWebhook は現在の設定を取得し、{appURL}/api/telegram/webhookへWebhookを登録して再取得する。
func (s *BotInfoService) SetupWebhook(ctx context.Context, appURL, secretToken string) (*WebhookSetupResult, error) {
	webhookURL := strings.TrimRight(appURL, "/") + "/api/telegram/webhook"

	previous, err := s.api.GetWebhookInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get current webhook info: %w", err)
	}

	err = s.api.SetWebhook(ctx, WebhookConfig{
		URL:            webhookURL,
		SecretToken:    secretToken,
		AllowedUpdates: []string{"message", "callback_query"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set webhook: %w", err)
	}

	current, err := s.api.GetWebhookInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to verify webhook info: %w", err)
	}

	s.logger.Info("Telegram Webhookを設定しました",
		slog.String("webhook_url", webhookURL),
		slog.Int("pending_update_count", current.PendingUpdateCount),
	)

	return &WebhookSetupResult{WebhookURL: webhookURL, Previous: previous, Current: current}, nil
}

var _ BotAPI = (*Client)(nil)
