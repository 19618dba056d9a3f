package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer は利用者が入力する自由記述テキストからHTMLを除去する。
// 予約の備考、機材の説明、氏名などの保存前に使用される。
type TextSanitizer interface {
	// Sanitize はタグを除去したプレーンテキストを返す。
	// script/style要素は内容ごと除去し、前後の空白を取り除く。
	Sanitize(input string) string
}

type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はbluemondayのStrictPolicyを使用するTextSanitizerを生成する。
func NewTextSanitizer() TextSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はタグを除去する。StrictPolicyがエスケープした文字実体は元に戻す。
func (s *textSanitizer) Sanitize(input string) string {
	if input == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(input)))
}
