package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

// PasswordHasher はパスワードハッシュの生成・照合インターフェース。
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
}

var _ PasswordHasher = (*Argon2Hasher)(nil)

// Argon2Hasher はargon2idでパスワードをハッシュ化する。
type Argon2Hasher struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// NewArgon2Hasher はOWASP推奨値のArgon2Hasherを生成する。
func NewArgon2Hasher() *Argon2Hasher {
	return &Argon2Hasher{
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Hash はPHC文字列形式のハッシュを返す。
func (a *Argon2Hasher) Hash(password string) (string, error) {
	salt := make([]byte, a.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, a.Iterations, a.Memory, a.Parallelism, a.KeyLength)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		a.Memory,
		a.Iterations,
		a.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify はパスワードがハッシュと一致するかを返す。パラメータはハッシュ文字列から読み取る。
func (a *Argon2Hasher) Verify(password, encodedHash string) (bool, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false, errors.New("invalid argon2id hash format")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, fmt.Errorf("invalid version: %w", err)
	}
	if version != argon2.Version {
		return false, fmt.Errorf("unsupported argon2 version: %d", version)
	}

	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return false, fmt.Errorf("invalid parameters: %w", err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, fmt.Errorf("invalid salt encoding: %w", err)
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, fmt.Errorf("invalid hash encoding: %w", err)
	}

	got := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(want)))
	return subtle.ConstantTimeCompare(want, got) == 1, nil
}

// ShadowCredentials はTelegramのみで登録したユーザーに割り当てる内部用の認証情報。
// パスワードの平文は保持しない。
type ShadowCredentials struct {
	Email        string
	PasswordHash string
}

// ShadowGenerator はシャドウ認証情報を生成する。
type ShadowGenerator struct {
	domain string
	hasher PasswordHasher
	random io.Reader
}

// NewShadowGenerator はShadowGeneratorを生成する。
func NewShadowGenerator(domain string, hasher PasswordHasher) *ShadowGenerator {
	return &ShadowGenerator{domain: domain, hasher: hasher, random: rand.Reader}
}

// Generate は telegram_<id>_<8桁hex>@<domain> のメールアドレスと、
// 32バイトの乱数から作ったパスワードのハッシュを返す。
func (g *ShadowGenerator) Generate(telegramID int64) (*ShadowCredentials, error) {
	suffix, err := g.randomHex(4)
	if err != nil {
		return nil, fmt.Errorf("failed to generate shadow email: %w", err)
	}
	password, err := g.randomHex(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate shadow password: %w", err)
	}

	hash, err := g.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash shadow password: %w", err)
	}

	return &ShadowCredentials{
		Email:        fmt.Sprintf("telegram_%d_%s@%s", telegramID, suffix, g.domain),
		PasswordHash: hash,
	}, nil
}

func (g *ShadowGenerator) randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(g.random, b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
