package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"docportal/internal/access"
	"docportal/internal/apperr"
	"docportal/internal/audit"
	"docportal/internal/identity"
	"docportal/internal/repository"
	"docportal/pkg/logger"
	"docportal/pkg/util"

	"go.uber.org/zap"
)

// FailureCounter 由 util.RetryCounter 实现（Redis INCR + TTL）
type FailureCounter interface {
	IncrementAndGet(ctx context.Context, key string) (int64, error)
	Get(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    string    `json:"user_id"`
}

type Me struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

var errBadCredentials = fmt.Errorf("invalid email or password: %w", apperr.ErrUnauthenticated)

type Service struct {
	users     repository.UserRepository
	resolver  *identity.Resolver
	evaluator *access.Evaluator
	counter   FailureCounter
	maxFailed int64
	sink      audit.Sink
	logger    *zap.Logger
}

func NewService(
	users repository.UserRepository,
	resolver *identity.Resolver,
	evaluator *access.Evaluator,
	counter FailureCounter,
	maxFailed int,
	sink audit.Sink,
	logger *zap.Logger,
) *Service {
	if maxFailed <= 0 {
		maxFailed = 5
	}
	return &Service{
		users:     users,
		resolver:  resolver,
		evaluator: evaluator,
		counter:   counter,
		maxFailed: int64(maxFailed),
		sink:      sink,
		logger:    logger,
	}
}

func failureKey(email string) string {
	return "login_fail:" + strings.ToLower(strings.TrimSpace(email))
}

// Login 校验密码并签发 token。同一邮箱连续失败达到上限后返回 ErrTooManyRequests，
// 计数器不可用时放行。
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	log := logger.WithTrace(ctx, s.logger)
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, apperr.Validation("email and password are required")
	}
	key := failureKey(email)

	if n, err := s.counter.Get(ctx, key); err != nil {
		log.Warn("Login failure counter unavailable", zap.Error(err))
	} else if n >= s.maxFailed {
		return nil, apperr.ErrTooManyRequests
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		log.Error("Failed to load user for login", zap.Error(err))
		return nil, apperr.Internal("load user", err)
	}
	if u == nil || !util.CheckPassword(password, u.PasswordHash) {
		if _, err := s.counter.IncrementAndGet(ctx, key); err != nil {
			log.Warn("Failed to record login failure", zap.Error(err))
		}
		return nil, errBadCredentials
	}

	if err := s.counter.Reset(ctx, key); err != nil {
		log.Warn("Failed to reset login failure counter", zap.Error(err))
	}

	token, expiresAt, err := s.resolver.Issue(identity.Principal{ID: u.ID, Email: u.Email})
	if err != nil {
		return nil, apperr.Internal("issue token", err)
	}

	s.sink.Record(ctx, audit.Entry{
		ActorID:    u.ID,
		Action:     audit.ActionLogin,
		EntityType: "user",
		EntityID:   u.ID,
	})
	log.Info("User logged in", zap.String("user_id", u.ID))

	return &LoginResult{Token: token, ExpiresAt: expiresAt, UserID: u.ID}, nil
}

// Logout token 无状态，客户端自行丢弃；这里只留审计记录
func (s *Service) Logout(ctx context.Context, p identity.Principal) {
	s.sink.Record(ctx, audit.Entry{
		ActorID:    p.ID,
		Action:     audit.ActionLogout,
		EntityType: "user",
		EntityID:   p.ID,
	})
}

func (s *Service) Me(ctx context.Context, p identity.Principal) (*Me, error) {
	caller, err := s.evaluator.EvaluateRole(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	u, err := s.users.GetByID(ctx, p.ID)
	if err != nil {
		return nil, apperr.Internal("load user", err)
	}
	return &Me{ID: u.ID, Email: u.Email, FullName: u.FullName, Role: caller.Role()}, nil
}
