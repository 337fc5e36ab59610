// Package audit records create/update/delete/login/logout events on a best-effort basis.
// Record never returns an error: a failing sink must not fail the operation that triggered it.
package audit

import (
	"context"
	"sync"
	"time"
)

type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionLogin  Action = "login"
	ActionLogout Action = "logout"
)

// Entry 一条审计记录；Before/After 为任意可 JSON 序列化的快照
type Entry struct {
	EventID    string
	ActorID    string
	Action     Action
	EntityType string
	EntityID   string
	Before     any
	After      any
	ClientIP   string
	At         time.Time
}

type Sink interface {
	Record(ctx context.Context, e Entry)
}

type clientIPKey struct{}

// WithClientIP HTTP 层把调用方 IP 放进 context
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

func ClientIP(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

// NopSink 丢弃所有记录
type NopSink struct{}

func (NopSink) Record(context.Context, Entry) {}

// MemorySink 保存在内存里，测试用
type MemorySink struct {
	mu      sync.Mutex
	entries []Entry
}

func NewMemorySink() *MemorySink { return &MemorySink{} }

func (s *MemorySink) Record(ctx context.Context, e Entry) {
	if e.ClientIP == "" {
		e.ClientIP = ClientIP(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
}

func (s *MemorySink) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Last 最近一条记录，没有时返回零值
func (s *MemorySink) Last() Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return Entry{}
	}
	return s.entries[len(s.entries)-1]
}
