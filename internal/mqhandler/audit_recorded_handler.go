package mqhandler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqcontracts "docportal/contracts/mq"
	"docportal/internal/model"
	"docportal/pkg/logger"
	"docportal/pkg/metrics"
	"docportal/pkg/util"

	"go.uber.org/zap"
)

const (
	auditHandlerName = "audit"
	maxRetries       = 5 // 最大重试次数
)

// AuditLogWriter 由 repository.AuditLogRepository 实现
type AuditLogWriter interface {
	Insert(ctx context.Context, l *model.AuditLog) (bool, error)
}

// Deduper 由 util.Deduper 实现
type Deduper interface {
	AcquireOnce(ctx context.Context, handler string, key string) bool
	Release(ctx context.Context, handler string, key string)
}

// RetryCounter 由 util.RetryCounter 实现
type RetryCounter interface {
	IncrementAndGet(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

// DeadLetterPublisher 由 mq.Publisher 实现
type DeadLetterPublisher interface {
	PublishToDLQ(ctx context.Context, routingKey string, payload []byte, originalError string) error
}

type AuditRecordedHandler struct {
	repo         AuditLogWriter
	deduper      Deduper
	retryCounter RetryCounter
	dlq          DeadLetterPublisher
	logger       *zap.Logger
}

func NewAuditRecordedHandler(
	repo AuditLogWriter,
	deduper Deduper,
	retryCounter RetryCounter,
	dlq DeadLetterPublisher,
	logger *zap.Logger,
) *AuditRecordedHandler {
	return &AuditRecordedHandler{
		repo:         repo,
		deduper:      deduper,
		retryCounter: retryCounter,
		dlq:          dlq,
		logger:       logger,
	}
}

// HandleAuditRecorded 把审计事件写入 audit_logs。
// 按 event_id 幂等；只有可重试且未超过次数上限的错误才返回 error 让 consumer nack。
func (h *AuditRecordedHandler) HandleAuditRecorded(ctx context.Context, raw json.RawMessage) error {
	log := logger.WithTrace(ctx, h.logger)

	var p mqcontracts.AuditRecordedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		log.Error("Failed to unmarshal audit payload (non-retryable, sending to DLQ)",
			zap.Error(err),
			zap.String("raw_payload", string(raw)),
		)
		h.deadLetter(ctx, raw, fmt.Errorf("json_unmarshal_error: %w", err))
		return nil
	}
	if p.EventID == "" || p.Action == "" {
		log.Error("Audit payload missing event_id or action, sending to DLQ",
			zap.String("raw_payload", string(raw)),
		)
		h.deadLetter(ctx, raw, fmt.Errorf("invalid_payload: missing event_id or action"))
		return nil
	}

	log = log.With(
		zap.String("event_id", p.EventID),
		zap.String("action", p.Action),
		zap.String("entity_type", p.EntityType),
	)

	// Redis 去重：减少重复投递造成的无效写入，唯一约束兜底
	if !h.deduper.AcquireOnce(ctx, auditHandlerName, p.EventID) {
		return nil
	}

	occurred := p.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	inserted, err := h.repo.Insert(ctx, &model.AuditLog{
		EventID:    p.EventID,
		ActorID:    p.ActorID,
		Action:     p.Action,
		EntityType: p.EntityType,
		EntityID:   p.EntityID,
		Before:     p.Before,
		After:      p.After,
		ClientIP:   p.ClientIP,
		CreatedAt:  occurred,
	})
	if err != nil {
		h.deduper.Release(ctx, auditHandlerName, p.EventID)

		isRetryable, errType := util.IsRetryableError(err)
		retryKey := util.FormatRetryKey(auditHandlerName, p.EventID)
		retryCount, cerr := h.retryCounter.IncrementAndGet(ctx, retryKey)
		if cerr != nil {
			log.Warn("Failed to get retry count, continuing anyway", zap.Error(cerr))
			retryCount = 1
		}

		log.Error("Failed to persist audit log",
			zap.String("error_type", errType),
			zap.Bool("retryable", isRetryable),
			zap.Int64("retry_count", retryCount),
			zap.Error(err),
		)

		if util.ShouldRetry(retryCount, maxRetries, isRetryable) {
			return err
		}

		h.deadLetter(ctx, raw, err)
		if err := h.retryCounter.Reset(ctx, retryKey); err != nil {
			log.Warn("Failed to reset retry count", zap.Error(err))
		}
		metrics.IncrementAuditEvent("dropped")
		return nil
	}

	if !inserted {
		log.Debug("Audit event already persisted, skipping")
		return nil
	}

	metrics.IncrementAuditEvent("persisted")
	log.Info("Audit log persisted",
		zap.String("actor_id", p.ActorID),
		zap.String("entity_id", p.EntityID),
	)
	return nil
}

func (h *AuditRecordedHandler) deadLetter(ctx context.Context, raw []byte, cause error) {
	if err := h.dlq.PublishToDLQ(ctx, mqcontracts.RoutingKeyAuditRecorded, raw, cause.Error()); err != nil {
		h.logger.Error("Failed to publish audit event to DLQ", zap.Error(err))
	}
}
