package repository

import (
	"context"
	"fmt"

	"docportal/internal/apperr"
	"docportal/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type PgProjectRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewProjectRepository(db *pgxpool.Pool, logger *zap.Logger) *PgProjectRepository {
	return &PgProjectRepository{db: db, logger: logger}
}

const projectColumns = `p.id, p.title, p.client_id, p.status, p.created_by, p.created_at, p.updated_at`

func (r *PgProjectRepository) Create(ctx context.Context, p *model.Project, initialMember string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
        INSERT INTO projects (title, client_id, status, created_by)
        VALUES ($1, $2, $3, $4)
        RETURNING id, created_at, updated_at
    `, p.Title, p.ClientID, p.Status, p.CreatedBy).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to insert project", zap.String("title", p.Title), zap.Error(err))
		return fmt.Errorf("failed to insert project: %w", err)
	}

	if initialMember != "" {
		if _, err := tx.Exec(ctx, `
            INSERT INTO project_members (project_id, consultant_id)
            VALUES ($1, $2)
            ON CONFLICT DO NOTHING
        `, p.ID, initialMember); err != nil {
			return fmt.Errorf("failed to insert project member: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit project: %w", err)
	}

	r.logger.Info("Project inserted successfully",
		zap.String("project_id", p.ID),
		zap.String("client_id", p.ClientID),
	)
	return nil
}

func (r *PgProjectRepository) GetByID(ctx context.Context, id string) (*model.Project, error) {
	var p model.Project
	err := r.db.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects p WHERE p.id = $1`, id).Scan(
		&p.ID, &p.Title, &p.ClientID, &p.Status, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, lookupErr(err, "project", id)
	}
	return &p, nil
}

func (r *PgProjectRepository) List(ctx context.Context) ([]model.Project, error) {
	return r.queryProjects(ctx, `SELECT `+projectColumns+` FROM projects p ORDER BY p.created_at DESC`)
}

func (r *PgProjectRepository) ListByClient(ctx context.Context, clientID string) ([]model.Project, error) {
	return r.queryProjects(ctx, `
        SELECT `+projectColumns+`
        FROM projects p
        WHERE p.client_id = $1
        ORDER BY p.created_at DESC
    `, clientID)
}

func (r *PgProjectRepository) ListByConsultant(ctx context.Context, consultantID string) ([]model.Project, error) {
	return r.queryProjects(ctx, `
        SELECT `+projectColumns+`
        FROM projects p
        JOIN project_members m ON m.project_id = p.id
        WHERE m.consultant_id = $1
        ORDER BY p.created_at DESC
    `, consultantID)
}

func (r *PgProjectRepository) queryProjects(ctx context.Context, query string, args ...any) ([]model.Project, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	projects := []model.Project{}
	for rows.Next() {
		var p model.Project
		if err := rows.Scan(&p.ID, &p.Title, &p.ClientID, &p.Status, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// IsMember 成员关系每次请求都重新查询
func (r *PgProjectRepository) IsMember(ctx context.Context, projectID, consultantID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM project_members WHERE project_id = $1 AND consultant_id = $2
        )
    `, projectID, consultantID).Scan(&exists)
	if err != nil {
		if isInvalidUUID(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return exists, nil
}

func (r *PgProjectRepository) AddMember(ctx context.Context, projectID, consultantID string) error {
	_, err := r.db.Exec(ctx, `
        INSERT INTO project_members (project_id, consultant_id)
        VALUES ($1, $2)
        ON CONFLICT (project_id, consultant_id) DO NOTHING
    `, projectID, consultantID)
	if err != nil {
		if isInvalidUUID(err) || isForeignKeyViolation(err) {
			return apperr.NotFound("project", projectID)
		}
		return fmt.Errorf("failed to add member: %w", err)
	}
	return nil
}

func (r *PgProjectRepository) RemoveMember(ctx context.Context, projectID, consultantID string) error {
	tag, err := r.db.Exec(ctx, `
        DELETE FROM project_members WHERE project_id = $1 AND consultant_id = $2
    `, projectID, consultantID)
	if err != nil {
		if isInvalidUUID(err) {
			return apperr.NotFound("membership", consultantID)
		}
		return fmt.Errorf("failed to remove member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("membership", consultantID)
	}
	return nil
}

func (r *PgProjectRepository) ListMembers(ctx context.Context, projectID string) ([]model.ProjectMember, error) {
	rows, err := r.db.Query(ctx, `
        SELECT m.project_id, m.consultant_id, u.email, u.full_name, m.created_at
        FROM project_members m
        JOIN users u ON u.id = m.consultant_id
        WHERE m.project_id = $1
        ORDER BY m.created_at
    `, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}

	members, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.ProjectMember, error) {
		var m model.ProjectMember
		err := row.Scan(&m.ProjectID, &m.ConsultantID, &m.Email, &m.FullName, &m.CreatedAt)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan members: %w", err)
	}
	return members, nil
}
