package repository

import (
	"context"
	"fmt"

	"docportal/internal/model"

	"github.com/jackc/pgx/v5/pgxpool"
)

type AuditLogRepository struct {
	db *pgxpool.Pool
}

func NewAuditLogRepository(db *pgxpool.Pool) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

// Insert 按 event_id 幂等写入；重复事件返回 false
func (r *AuditLogRepository) Insert(ctx context.Context, l *model.AuditLog) (bool, error) {
	query := `
        INSERT INTO audit_logs
            (event_id, actor_id, action, entity_type, entity_id, before, after, client_ip, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (event_id) DO NOTHING
    `
	tag, err := r.db.Exec(ctx, query,
		l.EventID,
		l.ActorID,
		l.Action,
		l.EntityType,
		l.EntityID,
		nullJSON(l.Before),
		nullJSON(l.After),
		l.ClientIP,
		l.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert audit log: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
