// Package identity turns a bearer credential into an authenticated principal.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"docportal/internal/apperr"
	"docportal/pkg/config"

	"github.com/golang-jwt/jwt/v5"
)

// Principal 已认证的调用方
type Principal struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Resolver 基于 HS256 JWT 的身份解析；不做任何跨请求缓存
type Resolver struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewResolver(cfg config.JWTConfig) *Resolver {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Resolver{
		secret: []byte(cfg.Secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue 为登录成功的用户签发 token
func (r *Resolver) Issue(p Principal) (string, time.Time, error) {
	if p.ID == "" {
		return "", time.Time{}, errors.New("principal id is required")
	}
	now := r.now()
	expiresAt := now.Add(r.ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Email: p.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(r.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Resolve 校验 token 并返回 principal。缺失、格式错误、过期、签名不符都返回 ErrUnauthenticated。
func (r *Resolver) Resolve(_ context.Context, bearer string) (Principal, error) {
	bearer = strings.TrimSpace(bearer)
	if bearer == "" {
		return Principal{}, fmt.Errorf("missing credential: %w", apperr.ErrUnauthenticated)
	}

	var c claims
	_, err := jwt.ParseWithClaims(bearer, &c, func(t *jwt.Token) (interface{}, error) {
		return r.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(r.now),
	)
	if err != nil {
		return Principal{}, fmt.Errorf("%v: %w", err, apperr.ErrUnauthenticated)
	}
	if c.Subject == "" {
		return Principal{}, fmt.Errorf("token has no subject: %w", apperr.ErrUnauthenticated)
	}

	return Principal{ID: c.Subject, Email: c.Email}, nil
}

// ExtractBearer 从 Authorization header 中取出 token
func ExtractBearer(header string) string {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}
