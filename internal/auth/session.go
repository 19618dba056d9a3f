package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hitoshi/rentcam/internal/model"
)

const (
	// Audience はセッショントークンのaudクレーム。
	Audience = "authenticated"
	// DefaultSessionTTL はセッショントークンの既定の有効期間。
	DefaultSessionTTL = 7 * 24 * time.Hour
)

// Principal はトークンに埋め込むユーザー情報。
type Principal struct {
	UserID string
	Email  string
	Role   model.Role
}

// Claims はセッショントークンのクレーム。subにユーザーIDを持つ。
type Claims struct {
	jwt.RegisteredClaims
	Email string     `json:"email"`
	Role  model.Role `json:"role"`
}

// Principal はクレームからPrincipalを取り出す。
func (c *Claims) Principal() Principal {
	return Principal{UserID: c.Subject, Email: c.Email, Role: c.Role}
}

// SessionConfig はセッション発行の設定。
type SessionConfig struct {
	Secret string
	TTL    time.Duration
	// Now は現在時刻を返す。nilの場合はtime.Now。
	Now func() time.Time
}

// SessionIssuer はHS256署名のセッショントークンを発行・検証する。トークンは保存しない。
type SessionIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionIssuer はSessionIssuerを生成する。Secretが空の場合はCONFIGURATION_ERRORを返す。
func NewSessionIssuer(cfg SessionConfig) (*SessionIssuer, error) {
	if cfg.Secret == "" {
		return nil, model.NewConfigurationError("SESSION_SECRET")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultSessionTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &SessionIssuer{secret: []byte(cfg.Secret), ttl: cfg.TTL, now: cfg.Now}, nil
}

// TTL はトークンの有効期間を返す。
func (s *SessionIssuer) TTL() time.Duration {
	return s.ttl
}

// Issue はトークンと有効期限を返す。
func (s *SessionIssuer) Issue(p Principal) (string, time.Time, error) {
	if p.UserID == "" {
		return "", time.Time{}, errors.New("principal user ID is required")
	}

	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			Audience:  jwt.ClaimStrings{Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		Email: p.Email,
		Role:  p.Role,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session token: %w", err)
	}
	return token, claims.ExpiresAt.Time, nil
}

// Parse はトークンの署名方式、audience、有効期限を検証してクレームを返す。
func (s *SessionIssuer) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("wrong signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithExpirationRequired(),
		jwt.WithAudience(Audience),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse session token: %w", err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, errors.New("session token is invalid")
	}
	return claims, nil
}
