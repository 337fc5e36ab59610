package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqcontracts "docportal/contracts/mq"
	"docportal/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockWriter struct{ mock.Mock }

func (m *mockWriter) Insert(ctx context.Context, l *model.AuditLog) (bool, error) {
	args := m.Called(l)
	return args.Bool(0), args.Error(1)
}

type mockDeduper struct{ mock.Mock }

func (m *mockDeduper) AcquireOnce(ctx context.Context, handler, key string) bool {
	return m.Called(handler, key).Bool(0)
}

func (m *mockDeduper) Release(ctx context.Context, handler, key string) {
	m.Called(handler, key)
}

type mockCounter struct{ mock.Mock }

func (m *mockCounter) IncrementAndGet(ctx context.Context, key string) (int64, error) {
	args := m.Called(key)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockCounter) Reset(ctx context.Context, key string) error {
	return m.Called(key).Error(0)
}

type mockDLQ struct{ mock.Mock }

func (m *mockDLQ) PublishToDLQ(ctx context.Context, routingKey string, payload []byte, originalError string) error {
	return m.Called(routingKey, payload, originalError).Error(0)
}

type mocks struct {
	writer  *mockWriter
	deduper *mockDeduper
	counter *mockCounter
	dlq     *mockDLQ
}

func newHandler() (*AuditRecordedHandler, mocks) {
	m := mocks{&mockWriter{}, &mockDeduper{}, &mockCounter{}, &mockDLQ{}}
	return NewAuditRecordedHandler(m.writer, m.deduper, m.counter, m.dlq, zap.NewNop()), m
}

func payload(t *testing.T) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(mqcontracts.AuditRecordedPayload{
		EventID:    "evt-1",
		ActorID:    "user-1",
		Action:     "update",
		EntityType: "document_requirement",
		EntityID:   "req-1",
		After:      json.RawMessage(`{"status":"approved"}`),
		ClientIP:   "10.0.0.1",
		OccurredAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return raw
}

func TestHandleAuditRecorded_Persists(t *testing.T) {
	h, m := newHandler()
	m.deduper.On("AcquireOnce", "audit", "evt-1").Return(true)
	m.writer.On("Insert", mock.MatchedBy(func(l *model.AuditLog) bool {
		return l.EventID == "evt-1" && l.Action == "update" && l.ClientIP == "10.0.0.1" &&
			string(l.After) == `{"status":"approved"}` &&
			l.CreatedAt.Equal(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	})).Return(true, nil)

	require.NoError(t, h.HandleAuditRecorded(context.Background(), payload(t)))
	m.writer.AssertExpectations(t)
	m.dlq.AssertNotCalled(t, "PublishToDLQ", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleAuditRecorded_DuplicateDeliverySkipped(t *testing.T) {
	h, m := newHandler()
	m.deduper.On("AcquireOnce", "audit", "evt-1").Return(false)

	require.NoError(t, h.HandleAuditRecorded(context.Background(), payload(t)))
	m.writer.AssertNotCalled(t, "Insert", mock.Anything)
}

func TestHandleAuditRecorded_MalformedGoesToDLQ(t *testing.T) {
	h, m := newHandler()
	m.dlq.On("PublishToDLQ", "audit.recorded", mock.Anything, mock.Anything).Return(nil)

	require.NoError(t, h.HandleAuditRecorded(context.Background(), json.RawMessage(`{not json`)))
	require.NoError(t, h.HandleAuditRecorded(context.Background(), json.RawMessage(`{"actor_id":"x"}`)))

	m.dlq.AssertNumberOfCalls(t, "PublishToDLQ", 2)
	m.writer.AssertNotCalled(t, "Insert", mock.Anything)
}

func TestHandleAuditRecorded_RetryableErrorNacks(t *testing.T) {
	h, m := newHandler()
	dbErr := context.DeadlineExceeded
	m.deduper.On("AcquireOnce", "audit", "evt-1").Return(true)
	m.deduper.On("Release", "audit", "evt-1").Return()
	m.writer.On("Insert", mock.Anything).Return(false, dbErr)
	m.counter.On("IncrementAndGet", "retry:audit:evt-1").Return(int64(2), nil)

	err := h.HandleAuditRecorded(context.Background(), payload(t))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	m.deduper.AssertCalled(t, "Release", "audit", "evt-1")
	m.dlq.AssertNotCalled(t, "PublishToDLQ", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleAuditRecorded_RetriesExhaustedGoesToDLQ(t *testing.T) {
	h, m := newHandler()
	m.deduper.On("AcquireOnce", "audit", "evt-1").Return(true)
	m.deduper.On("Release", "audit", "evt-1").Return()
	m.writer.On("Insert", mock.Anything).Return(false, context.DeadlineExceeded)
	m.counter.On("IncrementAndGet", "retry:audit:evt-1").Return(int64(maxRetries+1), nil)
	m.counter.On("Reset", "retry:audit:evt-1").Return(nil)
	m.dlq.On("PublishToDLQ", "audit.recorded", mock.Anything, mock.Anything).Return(nil)

	require.NoError(t, h.HandleAuditRecorded(context.Background(), payload(t)))
	m.dlq.AssertNumberOfCalls(t, "PublishToDLQ", 1)
	m.counter.AssertCalled(t, "Reset", "retry:audit:evt-1")
}

func TestHandleAuditRecorded_NonRetryableGoesToDLQ(t *testing.T) {
	h, m := newHandler()
	m.deduper.On("AcquireOnce", "audit", "evt-1").Return(true)
	m.deduper.On("Release", "audit", "evt-1").Return()
	m.writer.On("Insert", mock.Anything).Return(false, errors.New("unexpected"))
	m.counter.On("IncrementAndGet", "retry:audit:evt-1").Return(int64(1), nil)
	m.counter.On("Reset", "retry:audit:evt-1").Return(nil)
	m.dlq.On("PublishToDLQ", "audit.recorded", mock.Anything, "unexpected").Return(nil)

	require.NoError(t, h.HandleAuditRecorded(context.Background(), payload(t)))
	m.dlq.AssertExpectations(t)
}
