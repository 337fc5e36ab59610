package audit

import (
	"context"
	"encoding/json"
	"time"

	mqcontracts "docportal/contracts/mq"
	"docportal/pkg/circuitbreaker"
	"docportal/pkg/logger"
	"docportal/pkg/metrics"
	"docportal/pkg/trace"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Publisher 由 mq.Publisher 实现
type Publisher interface {
	PublishWithContext(ctx context.Context, routingKey string, payload any) error
}

// OutboxWriter 由 outbox.Repository 实现，MQ 不可用时兜底
type OutboxWriter interface {
	Save(ctx context.Context, aggregateType, aggregateID, routingKey string, payload any) error
}

// DefaultQueueSize 后台投递队列容量
const DefaultQueueSize = 1024

// MQSink 把审计事件放进有界队列，由后台协程经熔断器发布 audit.recorded；
// 发布失败写 outbox，再失败只记日志。队列满时在调用方直接写 outbox。
type MQSink struct {
	publisher Publisher
	breaker   *circuitbreaker.CircuitBreaker
	outbox    OutboxWriter
	logger    *zap.Logger
	timeout   time.Duration

	queue chan mqcontracts.AuditRecordedPayload
	done  chan struct{}
}

func NewMQSink(publisher Publisher, breaker *circuitbreaker.CircuitBreaker, outbox OutboxWriter, logger *zap.Logger) *MQSink {
	if breaker == nil {
		breaker = circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig())
	}
	return &MQSink{
		publisher: publisher,
		breaker:   breaker,
		outbox:    outbox,
		logger:    logger,
		timeout:   2 * time.Second,
		queue:     make(chan mqcontracts.AuditRecordedPayload, DefaultQueueSize),
		done:      make(chan struct{}),
	}
}

// Start 启动后台投递协程。ctx 取消后把队列里已有的事件投递完再退出。
func (s *MQSink) Start(ctx context.Context) {
	go s.run(ctx)
}

// Wait 等待后台协程退出
func (s *MQSink) Wait() {
	<-s.done
}

func (s *MQSink) run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case p := <-s.queue:
			s.deliver(p)
		case <-ctx.Done():
			s.drain()
			return
		}
	}
}

func (s *MQSink) drain() {
	for {
		select {
		case p := <-s.queue:
			s.deliver(p)
		default:
			return
		}
	}
}

// Record 只做入队，不等待 MQ
func (s *MQSink) Record(ctx context.Context, e Entry) {
	payload := BuildPayload(ctx, e)
	select {
	case s.queue <- payload:
		return
	default:
	}

	logger.WithTrace(ctx, s.logger).Warn("Audit queue full, writing event to outbox",
		zap.String("event_id", payload.EventID),
		zap.String("action", payload.Action),
	)
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	s.saveToOutbox(saveCtx, payload)
}

func (s *MQSink) deliver(payload mqcontracts.AuditRecordedPayload) {
	ctx := trace.WithContext(context.Background(), payload.TraceID)
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := s.breaker.Execute(func() error {
		return s.publisher.PublishWithContext(ctx, mqcontracts.RoutingKeyAuditRecorded, payload)
	})
	if err == nil {
		metrics.IncrementAuditEvent("published")
		return
	}

	logger.WithTrace(ctx, s.logger).Warn("Failed to publish audit event, falling back to outbox",
		zap.String("event_id", payload.EventID),
		zap.String("action", payload.Action),
		zap.String("entity_type", payload.EntityType),
		zap.String("breaker_state", s.breaker.GetState().String()),
		zap.Error(err),
	)
	s.saveToOutbox(ctx, payload)
}

func (s *MQSink) saveToOutbox(ctx context.Context, payload mqcontracts.AuditRecordedPayload) {
	if s.outbox == nil {
		metrics.IncrementAuditEvent("dropped")
		return
	}
	if err := s.outbox.Save(ctx, "audit", payload.EventID, mqcontracts.RoutingKeyAuditRecorded, payload); err != nil {
		metrics.IncrementAuditEvent("dropped")
		logger.WithTrace(ctx, s.logger).Error("Failed to save audit event to outbox",
			zap.String("event_id", payload.EventID),
			zap.Error(err),
		)
		return
	}
	metrics.IncrementAuditEvent("outboxed")
}

// BuildPayload 补齐 event id、时间、IP、trace id，并把快照序列化为 JSON
func BuildPayload(ctx context.Context, e Entry) mqcontracts.AuditRecordedPayload {
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	if e.ClientIP == "" {
		e.ClientIP = ClientIP(ctx)
	}
	return mqcontracts.AuditRecordedPayload{
		EventID:    e.EventID,
		ActorID:    e.ActorID,
		Action:     string(e.Action),
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Before:     snapshot(e.Before),
		After:      snapshot(e.After),
		ClientIP:   e.ClientIP,
		TraceID:    trace.FromContext(ctx),
		OccurredAt: e.At,
	}
}

func snapshot(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
