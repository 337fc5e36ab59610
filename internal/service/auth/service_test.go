package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"docportal/internal/access"
	"docportal/internal/apperr"
	"docportal/internal/audit"
	"docportal/internal/identity"
	"docportal/internal/model"
	"docportal/internal/repository/memory"
	"docportal/pkg/config"
	"docportal/pkg/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockCounter struct{ mock.Mock }

func (m *mockCounter) IncrementAndGet(ctx context.Context, key string) (int64, error) {
	args := m.Called(key)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockCounter) Get(ctx context.Context, key string) (int64, error) {
	args := m.Called(key)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockCounter) Reset(ctx context.Context, key string) error {
	return m.Called(key).Error(0)
}

func setup(t *testing.T, counter FailureCounter) (*Service, *identity.Resolver, *audit.MemorySink, *model.User) {
	t.Helper()
	db := memory.New()
	hash, err := util.HashPassword("correct horse")
	require.NoError(t, err)
	u := &model.User{Email: "Client@Example.com", FullName: "Client", Role: "client", PasswordHash: hash}
	require.NoError(t, db.Users().Create(context.Background(), u))

	resolver := identity.NewResolver(config.JWTConfig{Secret: "s", TokenTTL: time.Hour})
	ev := access.NewEvaluator(db.Users(), db.Projects(), zap.NewNop())
	sink := audit.NewMemorySink()
	return NewService(db.Users(), resolver, ev, counter, 3, sink, zap.NewNop()), resolver, sink, u
}

func TestLogin_Success(t *testing.T) {
	counter := &mockCounter{}
	counter.On("Get", "login_fail:client@example.com").Return(int64(2), nil)
	counter.On("Reset", "login_fail:client@example.com").Return(nil)
	svc, resolver, sink, u := setup(t, counter)

	res, err := svc.Login(context.Background(), " client@example.com ", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, u.ID, res.UserID)

	p, err := resolver.Resolve(context.Background(), res.Token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, p.ID)
	assert.Equal(t, audit.ActionLogin, sink.Last().Action)

	counter.AssertExpectations(t)
}

func TestLogin_WrongPasswordCountsFailure(t *testing.T) {
	counter := &mockCounter{}
	counter.On("Get", mock.Anything).Return(int64(0), nil)
	counter.On("IncrementAndGet", "login_fail:client@example.com").Return(int64(1), nil).Once()
	counter.On("IncrementAndGet", "login_fail:nobody@example.com").Return(int64(1), nil).Once()
	svc, _, sink, _ := setup(t, counter)

	_, err := svc.Login(context.Background(), "client@example.com", "wrong")
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)

	_, err = svc.Login(context.Background(), "nobody@example.com", "whatever")
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)

	assert.Empty(t, sink.Entries())
	counter.AssertExpectations(t)
}

func TestLogin_Throttled(t *testing.T) {
	counter := &mockCounter{}
	counter.On("Get", "login_fail:client@example.com").Return(int64(3), nil)
	svc, _, _, _ := setup(t, counter)

	_, err := svc.Login(context.Background(), "client@example.com", "correct horse")
	assert.ErrorIs(t, err, apperr.ErrTooManyRequests)
	counter.AssertNotCalled(t, "Reset", mock.Anything)
}

func TestLogin_CounterUnavailableFailsOpen(t *testing.T) {
	counter := &mockCounter{}
	counter.On("Get", mock.Anything).Return(int64(0), errors.New("redis down"))
	counter.On("Reset", mock.Anything).Return(errors.New("redis down"))
	svc, _, _, _ := setup(t, counter)

	_, err := svc.Login(context.Background(), "client@example.com", "correct horse")
	assert.NoError(t, err)
}

func TestLogin_Validation(t *testing.T) {
	svc, _, _, _ := setup(t, &mockCounter{})
	_, err := svc.Login(context.Background(), "", "x")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestMeAndLogout(t *testing.T) {
	svc, _, sink, u := setup(t, &mockCounter{})

	me, err := svc.Me(context.Background(), identity.Principal{ID: u.ID, Email: u.Email})
	require.NoError(t, err)
	assert.Equal(t, "client", me.Role)
	assert.Equal(t, "Client", me.FullName)

	_, err = svc.Me(context.Background(), identity.Principal{ID: "ghost"})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	svc.Logout(context.Background(), identity.Principal{ID: u.ID})
	assert.Equal(t, audit.ActionLogout, sink.Last().Action)
}
