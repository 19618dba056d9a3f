// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string            // エラーコード
	Message  string            // エラーメッセージ
	Category string            // カテゴリ: auth, validation, telegram, equipment, booking, system
	Action   string            // ユーザー向け対処方法
	Fields   map[string]string // 入力検証エラーのフィールド別メッセージ（VALIDATION_ERRORのみ）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeConfiguration         = "CONFIGURATION_ERROR"
	ErrCodeInvalidRequest        = "INVALID_REQUEST"
	ErrCodeValidation            = "VALIDATION_ERROR"
	ErrCodeUnauthorized          = "UNAUTHORIZED"
	ErrCodeForbidden             = "FORBIDDEN"
	ErrCodeInvalidTelegramData   = "INVALID_TELEGRAM_DATA"
	ErrCodeInvalidSignature      = "INVALID_SIGNATURE"
	ErrCodeAuthExpired           = "AUTH_EXPIRED"
	ErrCodeCodeExpired           = "CODE_EXPIRED"
	ErrCodeTelegramAlreadyLinked = "TELEGRAM_ALREADY_LINKED"
	ErrCodeTelegramNotLinked     = "TELEGRAM_NOT_LINKED"
	ErrCodeAlreadyVerified       = "ALREADY_VERIFIED"
	ErrCodeUserNotFound          = "USER_NOT_FOUND"
	ErrCodeDuplicateEmail        = "DUPLICATE_EMAIL"
	ErrCodeEquipmentNotFound     = "EQUIPMENT_NOT_FOUND"
	ErrCodeDuplicateSerial       = "DUPLICATE_SERIAL"
	ErrCodeEquipmentInUse        = "EQUIPMENT_IN_USE"
	ErrCodeEquipmentUnavailable  = "EQUIPMENT_UNAVAILABLE"
	ErrCodeBookingNotFound       = "BOOKING_NOT_FOUND"
	ErrCodeInvalidBookingPeriod  = "INVALID_BOOKING_PERIOD"
	ErrCodeBookingNotEditable    = "BOOKING_NOT_EDITABLE"
	ErrCodeCSRFInvalid           = "CSRF_TOKEN_INVALID"
	ErrCodeRateLimitExceeded     = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal              = "INTERNAL_ERROR"
)

// NewConfigurationError は必須設定が欠落している場合のエラーを生成する。
// 運用者による設定修正が必要で、リトライでは解決しない。
func NewConfigurationError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeConfiguration,
		Message:  fmt.Sprintf("サーバー設定が不足しています: %s", name),
		Category: "system",
		Action:   "管理者にお問い合わせください。",
	}
}

// NewInvalidRequestError はリクエストボディやパラメータが解析できない場合のエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "リクエスト内容を確認してください。",
	}
}

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(fields map[string]string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  "入力内容に誤りがあります。",
		Category: "validation",
		Action:   "各項目の内容を確認してください。",
		Fields:   fields,
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "管理者にお問い合わせください。",
	}
}

// NewInvalidTelegramDataError はTelegram認証データの必須項目が欠落・不正な場合のエラーを生成する。
func NewInvalidTelegramDataError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTelegramData,
		Message:  fmt.Sprintf("Telegramの認証データが不正です: %s", reason),
		Category: "auth",
		Action:   "もう一度Telegramでログインしてください。",
	}
}

// NewInvalidSignatureError は署名検証に失敗した場合のエラーを生成する。
func NewInvalidSignatureError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSignature,
		Message:  "Telegramの認証データの署名が一致しません。",
		Category: "auth",
		Action:   "もう一度Telegramでログインしてください。",
	}
}

// NewAuthExpiredError は認証データの有効期限切れエラーを生成する。
func NewAuthExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthExpired,
		Message:  "Telegramの認証データの有効期限が切れています。",
		Category: "auth",
		Action:   "もう一度Telegramでログインしてください。",
	}
}

// NewCodeExpiredError は認証コードが無効または期限切れの場合のエラーを生成する。
func NewCodeExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeCodeExpired,
		Message:  "認証コードが無効か、有効期限が切れています。",
		Category: "telegram",
		Action:   "新しい認証コードを発行してください。",
	}
}

// NewTelegramAlreadyLinkedError はTelegramアカウントが別ユーザーに紐付いている場合のエラーを生成する。
func NewTelegramAlreadyLinkedError() *APIError {
	return &APIError{
		Code:     ErrCodeTelegramAlreadyLinked,
		Message:  "このTelegramアカウントは既に別のユーザーに紐付いています。",
		Category: "telegram",
		Action:   "紐付け済みのアカウントでログインするか、先に連携を解除してください。",
	}
}

// NewTelegramNotLinkedError はTelegram連携が存在しない場合のエラーを生成する。
func NewTelegramNotLinkedError() *APIError {
	return &APIError{
		Code:     ErrCodeTelegramNotLinked,
		Message:  "Telegramアカウントが連携されていません。",
		Category: "telegram",
		Action:   "プロフィール画面からTelegramを連携してください。",
	}
}

// NewAlreadyVerifiedError は認証済みユーザーが認証コードを要求した場合のエラーを生成する。
func NewAlreadyVerifiedError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyVerified,
		Message:  "アカウントは既に認証済みです。",
		Category: "telegram",
		Action:   "追加の操作は不要です。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewDuplicateEmailError はメールアドレスが既に使われている場合のエラーを生成する。
func NewDuplicateEmailError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateEmail,
		Message:  "このメールアドレスは既に使用されています。",
		Category: "validation",
		Action:   "別のメールアドレスを入力してください。",
	}
}

// NewEquipmentNotFoundError は機材が見つからない場合のエラーを生成する。
func NewEquipmentNotFoundError(equipmentID string) *APIError {
	return &APIError{
		Code:     ErrCodeEquipmentNotFound,
		Message:  fmt.Sprintf("指定された機材が見つかりません: %s", equipmentID),
		Category: "equipment",
		Action:   "機材IDを確認してください。",
	}
}

// NewDuplicateSerialError はシリアル番号が重複している場合のエラーを生成する。
func NewDuplicateSerialError(serial string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateSerial,
		Message:  fmt.Sprintf("シリアル番号は既に登録されています: %s", serial),
		Category: "equipment",
		Action:   "シリアル番号を確認してください。",
	}
}

// NewEquipmentInUseError は有効な予約がある機材を削除しようとした場合のエラーを生成する。
func NewEquipmentInUseError() *APIError {
	return &APIError{
		Code:     ErrCodeEquipmentInUse,
		Message:  "有効な予約が存在するため機材を削除できません。",
		Category: "equipment",
		Action:   "予約を完了またはキャンセルしてから削除してください。",
	}
}

// NewEquipmentUnavailableError は機材が指定期間に予約できない場合のエラーを生成する。
func NewEquipmentUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeEquipmentUnavailable,
		Message:  "機材は指定された期間に利用できません。",
		Category: "booking",
		Action:   "別の期間または別の機材を選択してください。",
	}
}

// NewBookingNotFoundError は予約が見つからない場合のエラーを生成する。
func NewBookingNotFoundError(bookingID string) *APIError {
	return &APIError{
		Code:     ErrCodeBookingNotFound,
		Message:  fmt.Sprintf("指定された予約が見つかりません: %s", bookingID),
		Category: "booking",
		Action:   "予約IDを確認してください。",
	}
}

// NewInvalidBookingPeriodError は予約期間が不正な場合のエラーを生成する。
func NewInvalidBookingPeriodError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidBookingPeriod,
		Message:  fmt.Sprintf("予約期間が不正です: %s", reason),
		Category: "validation",
		Action:   "開始日時と終了日時を確認してください。",
	}
}

// NewBookingNotEditableError は利用者が変更できない状態の予約を変更しようとした場合のエラーを生成する。
func NewBookingNotEditableError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeBookingNotEditable,
		Message:  fmt.Sprintf("この予約は変更できません: %s", reason),
		Category: "booking",
		Action:   "承認前の予約のみ変更できます。必要な場合は管理者にお問い合わせください。",
	}
}

// NewCSRFInvalidError はCSRFトークンの検証に失敗した場合のエラーを生成する。
func NewCSRFInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFInvalid,
		Message:  "CSRFトークンの検証に失敗しました。",
		Category: "auth",
		Action:   "ページを再読み込みしてから再度お試しください。",
	}
}

// NewRateLimitExceededError はレート制限を超過した場合のエラーを生成する。
func NewRateLimitExceededError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimitExceeded,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
