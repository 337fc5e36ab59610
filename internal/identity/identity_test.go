package identity

import (
	"context"
	"testing"
	"time"

	"docportal/internal/apperr"
	"docportal/pkg/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newResolver() *Resolver {
	return NewResolver(config.JWTConfig{Secret: "test-secret", TokenTTL: time.Hour})
}

func TestIssueAndResolve(t *testing.T) {
	r := newResolver()

	token, expiresAt, err := r.Issue(Principal{ID: "u-1", Email: "a@example.com"})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	p, err := r.Resolve(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, Principal{ID: "u-1", Email: "a@example.com"}, p)
}

func TestResolve_Rejections(t *testing.T) {
	r := newResolver()

	past := newResolver()
	past.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _, err := past.Issue(Principal{ID: "u-1"})
	require.NoError(t, err)

	other := NewResolver(config.JWTConfig{Secret: "other-secret"})
	foreign, _, err := other.Issue(Principal{ID: "u-1"})
	require.NoError(t, err)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u-1"}).
		SignedString([]byte("test-secret"))
	require.NoError(t, err)

	noSub, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "u-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	cases := map[string]string{
		"empty":        "",
		"malformed":    "not-a-jwt",
		"expired":      expired,
		"wrong secret": foreign,
		"no expiry":    noExp,
		"no subject":   noSub,
		"alg none":     unsigned,
		"whitespace":   "   ",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := r.Resolve(context.Background(), token)
			assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
		})
	}
}

func TestExtractBearer(t *testing.T) {
	assert.Equal(t, "abc", ExtractBearer("Bearer abc"))
	assert.Equal(t, "abc", ExtractBearer("bearer   abc"))
	assert.Equal(t, "", ExtractBearer("Basic abc"))
	assert.Equal(t, "", ExtractBearer("Bearer"))
	assert.Equal(t, "", ExtractBearer(""))
}
