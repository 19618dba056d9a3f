package telegram

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/hitoshi/rentcam/internal/model"
)

// 署名方式の名前。TELEGRAM_SIGNATURE_SCHEMEで選択する。
const (
	SchemeWidget  = "widget"
	SchemeMiniApp = "miniapp"
)

// Verifier はアサーションのHMAC-SHA-256署名を検証する。
// 方式ごとに鍵の導出が異なり、互換性はない。
type Verifier interface {
	// Verify は署名が一致すればtrueを返す。不一致はエラーではなく(false, nil)。
	// ボットトークンが未設定の場合のみConfigurationErrorを返す。
	Verify(fields map[string]string, hash string) (bool, error)

	// Sign は検証文字列に対する署名を小文字16進で返す。
	Sign(fields map[string]string) (string, error)

	// Scheme は方式の名前を返す。
	Scheme() string
}

// NewVerifier は方式名に対応するVerifierを生成する。空文字列はwidgetとして扱う。
func NewVerifier(scheme, botToken string) (Verifier, error) {
	switch scheme {
	case "", SchemeWidget:
		return WidgetSignature{botToken: botToken}, nil
	case SchemeMiniApp:
		return MiniAppSignature{botToken: botToken}, nil
	default:
		return nil, fmt.Errorf("unknown telegram signature scheme: %q", scheme)
	}
}

// DataCheckString はhashを除くフィールドをキーの辞書順に並べ、"key=value"を改行で連結する。
// 値が空のフィールドは含めない。
func DataCheckString(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k, v := range fields {
		if k == "hash" || v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + "=" + fields[k]
	}
	return strings.Join(pairs, "\n")
}

// WidgetSignature はLogin Widget方式。鍵はSHA-256(ボットトークン)。
type WidgetSignature struct {
	botToken string
}

func (s WidgetSignature) key() ([]byte, error) {
	if s.botToken == "" {
		return nil, model.NewConfigurationError("TELEGRAM_BOT_TOKEN")
	}
	sum := sha256.Sum256([]byte(s.botToken))
	return sum[:], nil
}

// Sign は署名を計算する。
func (s WidgetSignature) Sign(fields map[string]string) (string, error) {
	key, err := s.key()
	if err != nil {
		return "", err
	}
	return sign(key, fields), nil
}

// Verify は署名を検証する。
func (s WidgetSignature) Verify(fields map[string]string, hash string) (bool, error) {
	key, err := s.key()
	if err != nil {
		return false, err
	}
	return equalHex(sign(key, fields), hash), nil
}

// Scheme は"widget"を返す。
func (WidgetSignature) Scheme() string { return SchemeWidget }

// MiniAppSignature はMini App方式。鍵はHMAC-SHA-256(key="WebAppData", msg=ボットトークン)。
type MiniAppSignature struct {
	botToken string
}

func (s MiniAppSignature) key() ([]byte, error) {
	if s.botToken == "" {
		return nil, model.NewConfigurationError("TELEGRAM_BOT_TOKEN")
	}
	mac := hmac.New(sha256.New, []byte("WebAppData"))
	mac.Write([]byte(s.botToken))
	return mac.Sum(nil), nil
}

// Sign は署名を計算する。
func (s MiniAppSignature) Sign(fields map[string]string) (string, error) {
	key, err := s.key()
	if err != nil {
		return "", err
	}
	return sign(key, fields), nil
}

// Verify は署名を検証する。
func (s MiniAppSignature) Verify(fields map[string]string, hash string) (bool, error) {
	key, err := s.key()
	if err != nil {
		return false, err
	}
	return equalHex(sign(key, fields), hash), nil
}

// Scheme は"miniapp"を返す。
func (MiniAppSignature) Scheme() string { return SchemeMiniApp }

func sign(key []byte, fields map[string]string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(DataCheckString(fields)))
	return hex.EncodeToString(mac.Sum(nil))
}

// equalHex は定数時間で比較する。受信側の大文字16進も許容する。
func equalHex(expected, received string) bool {
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(received)))
}

// VerifyAssertion はアサーションの署名を検証する。
func VerifyAssertion(v Verifier, a *Assertion) (bool, error) {
	return v.Verify(a.CheckFields(), a.Hash)
}

var (
	_ Verifier = WidgetSignature{}
	_ Verifier = MiniAppSignature{}
)
