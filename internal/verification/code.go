package verification

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
)

const (
	// CodeLength は認証コードの桁数。
	CodeLength = 6
	// codeAlphabet は認証コードに使う文字。
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// maxUnbiased はcodeAlphabetの長さの倍数で256未満の最大値。これ以上のバイトは捨てる。
const maxUnbiased = 256 - 256%len(codeAlphabet)

// GenerateCode はrから読んだ乱数で6桁の英大文字・数字のコードを生成する。
// rがnilの場合はcrypto/randを使う。偏りが出ないよう棄却サンプリングする。
func GenerateCode(r io.Reader) (string, error) {
	if r == nil {
		r = rand.Reader
	}

	var sb strings.Builder
	sb.Grow(CodeLength)
	buf := make([]byte, CodeLength*2)
	for sb.Len() < CodeLength {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= maxUnbiased {
				continue
			}
			sb.WriteByte(codeAlphabet[int(b)%len(codeAlphabet)])
			if sb.Len() == CodeLength {
				break
			}
		}
	}
	return sb.String(), nil
}

// NormalizeCode は前後の空白を除き大文字にする。
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidFormat はコードが6桁の英大文字・数字かどうかを返す。
func ValidFormat(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if !strings.ContainsRune(codeAlphabet, rune(code[i])) {
			return false
		}
	}
	return true
}
