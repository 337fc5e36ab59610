package repository

import (
	"context"
	"fmt"

	"docportal/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgFileVersionRepository struct {
	db *pgxpool.Pool
}

func NewFileVersionRepository(db *pgxpool.Pool) *PgFileVersionRepository {
	return &PgFileVersionRepository{db: db}
}

const fileVersionColumns = `id, requirement_id, storage_path, original_name, version_number, comment, uploaded_by, created_at`

func scanFileVersion(row pgx.Row) (*model.FileVersion, error) {
	var f model.FileVersion
	err := row.Scan(
		&f.ID,
		&f.RequirementID,
		&f.StoragePath,
		&f.OriginalName,
		&f.VersionNumber,
		&f.Comment,
		&f.UploadedBy,
		&f.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *PgFileVersionRepository) GetByID(ctx context.Context, id string) (*model.FileVersion, error) {
	f, err := scanFileVersion(r.db.QueryRow(ctx, `SELECT `+fileVersionColumns+` FROM file_versions WHERE id = $1`, id))
	if err != nil {
		return nil, lookupErr(err, "file", id)
	}
	return f, nil
}

func (r *PgFileVersionRepository) ListByRequirement(ctx context.Context, requirementID string) ([]model.FileVersion, error) {
	return r.queryFiles(ctx, `
        SELECT `+fileVersionColumns+`
        FROM file_versions
        WHERE requirement_id = $1
        ORDER BY created_at DESC, id DESC
    `, requirementID)
}

func (r *PgFileVersionRepository) ListByProject(ctx context.Context, projectID string) ([]model.FileVersion, error) {
	return r.queryFiles(ctx, `
        SELECT f.id, f.requirement_id, f.storage_path, f.original_name, f.version_number,
               f.comment, f.uploaded_by, f.created_at
        FROM file_versions f
        JOIN document_requirements d ON d.id = f.requirement_id
        WHERE d.project_id = $1
        ORDER BY f.created_at DESC, f.id DESC
    `, projectID)
}

func (r *PgFileVersionRepository) queryFiles(ctx context.Context, query string, args ...any) ([]model.FileVersion, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query file versions: %w", err)
	}
	defer rows.Close()

	files := []model.FileVersion{}
	for rows.Next() {
		f, err := scanFileVersion(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, *f)
	}
	return files, rows.Err()
}

// MaxVersion 读取当前最大版本号。读取与之后的插入之间没有锁，
// 并发的 Init 可能拿到相同的版本号，版本号只是提交批次的标签；
// AppendSubmission 在行锁内会再校验一次。
func (r *PgFileVersionRepository) MaxVersion(ctx context.Context, requirementID string) (int, error) {
	var max int
	err := r.db.QueryRow(ctx, `
        SELECT COALESCE(MAX(version_number), 0) FROM file_versions WHERE requirement_id = $1
    `, requirementID).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("failed to read max version: %w", err)
	}
	return max, nil
}
