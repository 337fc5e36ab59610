package mq

import (
	"encoding/json"
	"time"
)

// RoutingKeyAuditRecorded 审计事件的 routing key；消费队列为 audit.recorded.q
const RoutingKeyAuditRecorded = "audit.recorded"

// AuditRecordedPayload API 层写出的审计事件
type AuditRecordedPayload struct {
	EventID    string          `json:"event_id"`
	ActorID    string          `json:"actor_id"`
	Action     string          `json:"action"` // create / update / delete / login / logout
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
	ClientIP   string          `json:"client_ip,omitempty"`
	TraceID    string          `json:"trace_id,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}
