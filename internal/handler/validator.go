package handler

import (
	"errors"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"github.com/hitoshi/rentcam/internal/model"
	"github.com/hitoshi/rentcam/internal/telegram"
)

// requestValidator はリクエストDTOのvalidateタグを検証する。
// フィールド名にはjsonタグの名前を使う。
type requestValidator struct {
	validate *validator.Validate
	trans    ut.Translator
}

func newRequestValidator() *requestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	locale := en.New()
	uni := ut.New(locale, locale)
	trans, _ := uni.GetTranslator("en")
	if err := en_translations.RegisterDefaultTranslations(v, trans); err != nil {
		panic("failed to register validator translations: " + err.Error())
	}
	return &requestValidator{validate: v, trans: trans}
}

// fieldErrors は検証エラーをフィールド名→メッセージのマップに変換する。
// 検証エラー以外（不正な引数）の場合はnilとfalseを返す。
func (rv *requestValidator) fieldErrors(s interface{}) (map[string]string, bool) {
	err := rv.validate.Struct(s)
	if err == nil {
		return nil, true
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil, false
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Translate(rv.trans)
	}
	return fields, true
}

// Struct はDTOを検証し、失敗した場合はVALIDATION_ERRORを返す。
func (rv *requestValidator) Struct(s interface{}) *model.APIError {
	fields, ok := rv.fieldErrors(s)
	if !ok {
		return model.NewInvalidRequestError("リクエストを検証できません")
	}
	if len(fields) > 0 {
		return model.NewValidationError(fields)
	}
	return nil
}

// Assertion はTelegramのアサーションを検証する。失敗した場合はINVALID_TELEGRAM_DATAを返す。
func (rv *requestValidator) Assertion(a *telegram.Assertion) *model.APIError {
	fields, ok := rv.fieldErrors(a)
	if !ok {
		return model.NewInvalidTelegramDataError("検証できません")
	}
	if len(fields) == 0 {
		return nil
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	apiErr := model.NewInvalidTelegramDataError(strings.Join(names, ", "))
	apiErr.Fields = fields
	return apiErr
}
