package telegram

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/hitoshi/rentcam/internal/model"
)

// SecretHeader はWebhookのシークレットトークンを運ぶヘッダー。
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// Update はWebhookで受信する更新。
type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message,omitempty"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

// Message はチャットメッセージ。
type Message struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from,omitempty"`
	Chat      Chat   `json:"chat"`
	Date      int64  `json:"date"`
	Text      string `json:"text,omitempty"`
}

// User はメッセージの送信者。
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// Chat はメッセージの送信先チャット。
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// CallbackQuery はインラインボタンの押下。
type CallbackQuery struct {
	ID   string `json:"id"`
	From User   `json:"from"`
	Data string `json:"data,omitempty"`
}

// VerifyWebhookSecret はヘッダーの値がシークレットと一致するかを定数時間で比較する。
// シークレットが未設定の場合は常にfalse。
func VerifyWebhookSecret(header, secret string) bool {
	if secret == "" || header == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(header), []byte(secret)) == 1
}

// CommandService はボットコマンドが必要とする連携・認証コードの操作。
type CommandService interface {
	// RegisterPending は所有者のない連携レコードを作成する。既にあれば何もしない。
	RegisterPending(ctx context.Context, link *model.TelegramLink) error
	// IssueForTelegram はtelegram_id向けの認証コードを発行する。
	IssueForTelegram(ctx context.Context, link *model.TelegramLink) (*model.VerificationCode, error)
	// ConsumeFromBot はボットで受け取ったコードを照合し、可能なら消費して連携する。
	ConsumeFromBot(ctx context.Context, code string, link *model.TelegramLink) (model.CodeOutcome, error)
}

// CommandObserver はコマンド受信とBot API失敗を記録する。
type CommandObserver interface {
	RecordWebhookCommand(command string)
	RecordBotAPIFailure(method string)
}

var (
	startWithCodePattern = regexp.MustCompile(`^/start\s+([A-Za-z0-9]{6})$`)
	plainCodePattern     = regexp.MustCompile(`^[A-Z0-9]{6}$`)
)

// 返信メッセージ。
const (
	replyWelcome = "RentCamボットへようこそ！\n" +
		"サイトで発行した6桁の認証コードを送信すると、アカウントを連携できます。\n" +
		"/verify でこのボットから認証コードを発行することもできます。"
	replyHelp = "使い方:\n" +
		"・サイトで発行した6桁の認証コードをそのまま送信\n" +
		"・/verify 認証コードを発行\n" +
		"・/help このメッセージを表示"
	replyIssuedFormat = "認証コード: %s\n%d分以内にサイトのプロフィール画面で入力してください。"
	replyInvalid      = "認証コードが無効か、有効期限が切れています。サイトで新しいコードを発行してください。"
	replyLinked       = "アカウントの認証が完了しました！機材の予約ができるようになりました。"
	replyNeedsWeb     = "このコードはサイトのプロフィール画面で入力してください。"
	replyConflict     = "このTelegramアカウントは既に別のユーザーに連携されています。"
	replyError        = "エラーが発生しました。しばらくしてから再度お試しください。"
)

// CommandRouter はWebhookの更新をコマンドごとに振り分け、返信を送る。
// 返信の送信失敗はログとメトリクスに記録するのみで再送しない。
type CommandRouter struct {
	svc      CommandService
	api      BotAPI
	observer CommandObserver
	logger   *slog.Logger
	codeTTL  time.Duration
}

// NewCommandRouter はCommandRouterを生成する。codeTTLは/verifyの返信に表示する有効期間。
func NewCommandRouter(svc CommandService, api BotAPI, observer CommandObserver, logger *slog.Logger, codeTTL time.Duration) *CommandRouter {
	return &CommandRouter{svc: svc, api: api, observer: observer, logger: logger, codeTTL: codeTTL}
}

// Handle は1件の更新を処理する。戻り値はなく、呼び出し側は常に200を返す。
func (r *CommandRouter) Handle(ctx context.Context, update *Update) {
	if update == nil {
		return
	}
	if cq := update.CallbackQuery; cq != nil {
		r.observe("callback_query")
		if err := r.api.AnswerCallbackQuery(ctx, cq.ID, ""); err != nil {
			r.replyFailed("answerCallbackQuery", cq.From.ID, err)
		}
		return
	}

	msg := update.Message
	if msg == nil || msg.From == nil || strings.TrimSpace(msg.Text) == "" {
		return
	}

	command, reply := r.dispatch(ctx, msg)
	r.observe(command)

	if err := r.api.SendMessage(ctx, msg.Chat.ID, reply); err != nil {
		r.replyFailed("sendMessage", msg.From.ID, err)
	}
}

// dispatch はコマンド名と返信テキストを返す。
func (r *CommandRouter) dispatch(ctx context.Context, msg *Message) (string, string) {
	text := normalizeCommand(strings.TrimSpace(msg.Text))
	link := linkFromSender(msg.From)

	if m := startWithCodePattern.FindStringSubmatch(text); m != nil {
		return "start_code", r.consume(ctx, strings.ToUpper(m[1]), link)
	}

	switch firstToken(text) {
	case "/start":
		if err := r.svc.RegisterPending(ctx, link); err != nil {
			r.logger.Error("pending連携の作成に失敗しました",
				slog.Int64("telegram_id", link.TelegramID),
				slog.String("error", err.Error()),
			)
		}
		return "start", replyWelcome
	case "/verify":
		code, err := r.svc.IssueForTelegram(ctx, link)
		if err != nil {
			r.logger.Error("認証コードの発行に失敗しました",
				slog.Int64("telegram_id", link.TelegramID),
				slog.String("error", err.Error()),
			)
			return "verify", replyError
		}
		return "verify", fmt.Sprintf(replyIssuedFormat, code.Code, int(r.codeTTL.Minutes()))
	case "/help":
		return "help", replyHelp
	}

	if upper := strings.ToUpper(text); plainCodePattern.MatchString(upper) {
		return "code", r.consume(ctx, upper, link)
	}
	return "unknown", replyHelp
}

func (r *CommandRouter) consume(ctx context.Context, code string, link *model.TelegramLink) string {
	outcome, err := r.svc.ConsumeFromBot(ctx, code, link)
	if err != nil {
		r.logger.Error("認証コードの照合に失敗しました",
			slog.Int64("telegram_id", link.TelegramID),
			slog.String("error", err.Error()),
		)
		return replyError
	}

	switch outcome {
	case model.CodeLinked:
		r.logger.Info("ボット経由でTelegramアカウントを連携しました",
			slog.Int64("telegram_id", link.TelegramID),
		)
		return replyLinked
	case model.CodeNeedsWeb:
		return replyNeedsWeb
	case model.CodeConflict:
		return replyConflict
	default:
		return replyInvalid
	}
}

func (r *CommandRouter) observe(command string) {
	if r.observer != nil {
		r.observer.RecordWebhookCommand(command)
	}
}

func (r *CommandRouter) replyFailed(method string, telegramID int64, err error) {
	r.logger.Warn("Telegramへの返信に失敗しました",
		slog.String("method", method),
		slog.Int64("telegram_id", telegramID),
		slog.String("error", err.Error()),
	)
	if r.observer != nil {
		r.observer.RecordBotAPIFailure(method)
	}
}

// normalizeCommand は"/start@rentcam_bot CODE"のボット名部分を取り除く。
func normalizeCommand(text string) string {
	if !strings.HasPrefix(text, "/") {
		return text
	}
	head, rest, hasRest := strings.Cut(text, " ")
	if at := strings.Index(head, "@"); at > 0 {
		head = head[:at]
	}
	if hasRest {
		return head + " " + rest
	}
	return head
}

func firstToken(text string) string {
	if fields := strings.Fields(text); len(fields) > 0 {
		return fields[0]
	}
	return ""
}

func linkFromSender(from *User) *model.TelegramLink {
	return &model.TelegramLink{
		TelegramID: from.ID,
		Username:   from.Username,
		FirstName:  from.FirstName,
		LastName:   from.LastName,
	}
}
