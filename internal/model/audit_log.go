package model

import (
	"encoding/json"
	"time"
)

// AuditLog worker 落库的审计记录，event_id 唯一
type AuditLog struct {
	ID         int64           `json:"id"`
	EventID    string          `json:"event_id"`
	ActorID    string          `json:"actor_id"`
	Action     string          `json:"action"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
	ClientIP   string          `json:"client_ip,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}
