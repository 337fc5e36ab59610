package repository

import (
	"context"
	"errors"
	"fmt"

	"docportal/internal/apperr"
	"docportal/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type PgRequirementRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewRequirementRepository(db *pgxpool.Pool, logger *zap.Logger) *PgRequirementRepository {
	return &PgRequirementRepository{db: db, logger: logger}
}

const requirementColumns = `id, project_id, activity_id, name, description, mandatory,
        attachment_path, deadline, created_by, status, created_at, updated_at`

func scanRequirement(row pgx.Row) (*model.DocumentRequirement, error) {
	var r model.DocumentRequirement
	err := row.Scan(
		&r.ID,
		&r.ProjectID,
		&r.ActivityID,
		&r.Name,
		&r.Description,
		&r.Mandatory,
		&r.AttachmentPath,
		&r.Deadline,
		&r.CreatedBy,
		&r.Status,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *PgRequirementRepository) Create(ctx context.Context, req *model.DocumentRequirement) error {
	query := `
        INSERT INTO document_requirements
            (project_id, activity_id, name, description, mandatory, attachment_path, deadline, created_by, status)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING id, created_at, updated_at
    `
	err := r.db.QueryRow(ctx, query,
		req.ProjectID,
		req.ActivityID,
		req.Name,
		req.Description,
		req.Mandatory,
		req.AttachmentPath,
		req.Deadline,
		req.CreatedBy,
		req.Status,
	).Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		if isInvalidUUID(err) || isForeignKeyViolation(err) {
			return apperr.NotFound("project", req.ProjectID)
		}
		r.logger.Error("Failed to insert requirement",
			zap.String("project_id", req.ProjectID),
			zap.Error(err),
		)
		return fmt.Errorf("failed to insert requirement: %w", err)
	}
	return nil
}

func (r *PgRequirementRepository) GetByID(ctx context.Context, id string) (*model.DocumentRequirement, error) {
	req, err := scanRequirement(r.db.QueryRow(ctx, `SELECT `+requirementColumns+` FROM document_requirements WHERE id = $1`, id))
	if err != nil {
		return nil, lookupErr(err, "requirement", id)
	}
	return req, nil
}

func (r *PgRequirementRepository) ListByProject(ctx context.Context, projectID string) ([]model.DocumentRequirement, error) {
	rows, err := r.db.Query(ctx, `
        SELECT `+requirementColumns+`
        FROM document_requirements
        WHERE project_id = $1
        ORDER BY created_at ASC, id ASC
    `, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query requirements: %w", err)
	}
	defer rows.Close()

	list := []model.DocumentRequirement{}
	for rows.Next() {
		req, err := scanRequirement(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *req)
	}
	return list, rows.Err()
}

func (r *PgRequirementRepository) Update(ctx context.Context, req *model.DocumentRequirement) error {
	err := r.db.QueryRow(ctx, `
        UPDATE document_requirements
        SET name = $2, description = $3, mandatory = $4, deadline = $5,
            attachment_path = $6, updated_at = NOW()
        WHERE id = $1
        RETURNING updated_at
    `, req.ID, req.Name, req.Description, req.Mandatory, req.Deadline, req.AttachmentPath).Scan(&req.UpdatedAt)
	if err != nil {
		return lookupErr(err, "requirement", req.ID)
	}
	return nil
}

func (r *PgRequirementRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM document_requirements WHERE id = $1`, id)
	if err != nil {
		return lookupErr(err, "requirement", id)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("requirement", id)
	}
	return nil
}

// lockRequirement 锁住需求行并返回锁内的当前状态，串行化同一需求上的提交和审核
func lockRequirement(ctx context.Context, tx pgx.Tx, id string) (model.RequirementStatus, error) {
	var current model.RequirementStatus
	err := tx.QueryRow(ctx, `SELECT status FROM document_requirements WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if err != nil {
		return "", lookupErr(err, "requirement", id)
	}
	return current, nil
}

// transition 对锁内状态应用事件
func transition(id string, current model.RequirementStatus, event model.RequirementEvent) (model.Transition, error) {
	next, err := current.Next(event)
	if err != nil {
		return model.Transition{From: current, To: current}, fmt.Errorf("requirement %s is %s, cannot apply %s: %w", id, current, event, err)
	}
	return model.Transition{From: current, To: next}, nil
}

func (r *PgRequirementRepository) AppendSubmission(ctx context.Context, requirementID string, version int, files []*model.FileVersion) (model.Transition, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return model.Transition{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := lockRequirement(ctx, tx, requirementID)
	if err != nil {
		return model.Transition{}, err
	}
	tr, err := transition(requirementID, current, model.EventSubmission)
	if err != nil {
		return tr, err
	}

	var latest int
	if err := tx.QueryRow(ctx, `
        SELECT COALESCE(MAX(version_number), 0) FROM file_versions WHERE requirement_id = $1
    `, requirementID).Scan(&latest); err != nil {
		return tr, fmt.Errorf("failed to read max version: %w", err)
	}
	if !model.AcceptsVersion(version, latest) {
		return tr, fmt.Errorf("version %d against latest %d: %w", version, latest, model.ErrVersionConflict)
	}

	// clock_timestamp 让同一批次的行也有先后顺序
	for _, f := range files {
		f.VersionNumber = version
		err := tx.QueryRow(ctx, `
            INSERT INTO file_versions
                (requirement_id, storage_path, original_name, version_number, uploaded_by, created_at)
            VALUES ($1, $2, $3, $4, $5, clock_timestamp())
            RETURNING id, created_at
        `, requirementID, f.StoragePath, f.OriginalName, f.VersionNumber, f.UploadedBy).Scan(&f.ID, &f.CreatedAt)
		if err != nil {
			return tr, fmt.Errorf("failed to insert file version: %w", err)
		}
		f.RequirementID = requirementID
	}

	if _, err := tx.Exec(ctx, `
        UPDATE document_requirements SET status = $2, updated_at = NOW() WHERE id = $1
    `, requirementID, tr.To); err != nil {
		return tr, fmt.Errorf("failed to update requirement status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return tr, fmt.Errorf("failed to commit submission: %w", err)
	}

	r.logger.Info("Submission recorded",
		zap.String("requirement_id", requirementID),
		zap.Int("version", version),
		zap.Int("file_count", len(files)),
		zap.String("from", string(tr.From)),
		zap.String("to", string(tr.To)),
	)
	return tr, nil
}

func (r *PgRequirementRepository) ApplyDecision(ctx context.Context, requirementID string, event model.RequirementEvent, note *string) (model.Transition, *model.FileVersion, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return model.Transition{}, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := lockRequirement(ctx, tx, requirementID)
	if err != nil {
		return model.Transition{}, nil, err
	}
	tr, err := transition(requirementID, current, event)
	if err != nil {
		return tr, nil, err
	}
	if current == model.StatusApproved {
		return tr, nil, nil
	}

	var annotated *model.FileVersion
	if note != nil {
		f, err := scanFileVersion(tx.QueryRow(ctx, `
            UPDATE file_versions
            SET comment = $2
            WHERE id = (
                SELECT id FROM file_versions
                WHERE requirement_id = $1
                ORDER BY created_at DESC, id DESC
                LIMIT 1
            )
            RETURNING `+fileVersionColumns+`
        `, requirementID, *note))
		switch {
		case err == nil:
			annotated = f
		case errors.Is(err, pgx.ErrNoRows):
			// 还没有任何文件
		default:
			return tr, nil, fmt.Errorf("failed to annotate latest file: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `
        UPDATE document_requirements SET status = $2, updated_at = NOW() WHERE id = $1
    `, requirementID, tr.To); err != nil {
		return tr, nil, fmt.Errorf("failed to update requirement status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return tr, nil, fmt.Errorf("failed to commit decision: %w", err)
	}
	return tr, annotated, nil
}
