// Package upload implements the two-phase upload protocol and signed downloads.
//
// Phase 1 (Init) hands out per-file write URLs under a canonical key prefix.
// The client writes straight to the object store, then calls Phase 2 (Complete)
// to record what it actually uploaded. Complete trusts the client's list; objects
// are not checked for existence.
package upload

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"docportal/internal/access"
	"docportal/internal/apperr"
	"docportal/internal/audit"
	"docportal/internal/model"
	"docportal/internal/repository"
	"docportal/internal/storage"
	"docportal/pkg/logger"
	"docportal/pkg/metrics"
	"docportal/pkg/otel"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Options struct {
	MaxFiles    int
	MaxFileSize int64
	UploadTTL   time.Duration
	DownloadTTL time.Duration
}

func DefaultOptions() Options {
	return Options{
		MaxFiles:    50,
		MaxFileSize: 25 << 20,
		UploadTTL:   10 * time.Minute,
		DownloadTTL: 5 * time.Minute,
	}
}

type FileDescriptor struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

type Placement struct {
	Index      int               `json:"index"`
	FileName   string            `json:"file_name"`
	StorageKey string            `json:"storage_key"`
	URL        string            `json:"url"`
	Method     string            `json:"method"`
	Headers    map[string]string `json:"headers,omitempty"`
	ExpiresAt  time.Time         `json:"expires_at"`
}

type InitResult struct {
	BatchID       string      `json:"batch_id"`
	RequirementID string      `json:"requirement_id"`
	Version       int         `json:"version"`
	Placements    []Placement `json:"placements"`
}

type UploadedItem struct {
	StorageKey   string `json:"storage_key"`
	OriginalName string `json:"original_name"`
}

type CompleteResult struct {
	RequirementID string                  `json:"requirement_id"`
	Version       int                     `json:"version"`
	Status        model.RequirementStatus `json:"status"`
	Files         []*model.FileVersion    `json:"files"`
}

type Download struct {
	URL       string    `json:"url"`
	FileName  string    `json:"file_name"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Service struct {
	requirements repository.RequirementRepository
	files        repository.FileVersionRepository
	evaluator    *access.Evaluator
	presigner    storage.Presigner
	sink         audit.Sink
	opts         Options
	logger       *zap.Logger
	newToken     func() string
}

func NewService(
	requirements repository.RequirementRepository,
	files repository.FileVersionRepository,
	evaluator *access.Evaluator,
	presigner storage.Presigner,
	sink audit.Sink,
	opts Options,
	logger *zap.Logger,
) *Service {
	def := DefaultOptions()
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = def.MaxFiles
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = def.MaxFileSize
	}
	if opts.UploadTTL <= 0 {
		opts.UploadTTL = def.UploadTTL
	}
	if opts.DownloadTTL <= 0 {
		opts.DownloadTTL = def.DownloadTTL
	}
	return &Service{
		requirements: requirements,
		files:        files,
		evaluator:    evaluator,
		presigner:    presigner,
		sink:         sink,
		opts:         opts,
		logger:       logger,
		newToken:     func() string { return strings.ReplaceAll(uuid.NewString(), "-", "")[:12] },
	}
}

// loadGranted 加载需求并在其项目上重新做访问判定
func (s *Service) loadGranted(ctx context.Context, callerID, requirementID string) (*model.DocumentRequirement, access.Grant, error) {
	req, err := s.requirements.GetByID(ctx, requirementID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, access.Grant{}, err
		}
		return nil, access.Grant{}, apperr.Internal("load requirement", err)
	}
	grant, err := s.evaluator.Evaluate(ctx, req.ProjectID, callerID)
	if err != nil {
		return nil, access.Grant{}, err
	}
	return req, grant, nil
}

// Init 第一阶段：校验批次，计算下一个版本号，为每个文件签发上传 URL
func (s *Service) Init(ctx context.Context, callerID, requirementID string, files []FileDescriptor) (*InitResult, error) {
	ctx, span := otel.StartSpan(ctx, "upload.Init")
	defer span.End()

	log := logger.WithTrace(ctx, s.logger).With(
		zap.String("requirement_id", requirementID),
		zap.String("caller_id", callerID),
	)

	req, _, err := s.loadGranted(ctx, callerID, requirementID)
	if err != nil {
		return nil, err
	}

	if err := s.validateBatch(len(files)); err != nil {
		return nil, err
	}
	for i, f := range files {
		if strings.TrimSpace(f.Name) == "" {
			return nil, apperr.Validation("file %d: name is required", i)
		}
		if f.Size <= 0 || f.Size > s.opts.MaxFileSize {
			return nil, apperr.Validation("file %d: size must be between 1 and %d bytes", i, s.opts.MaxFileSize)
		}
	}
	if _, err := req.Status.Next(model.EventSubmission); err != nil {
		return nil, apperr.Validation("requirement is %s and accepts no further submissions", req.Status)
	}

	// 先读后定：并发的 Init 可能拿到相同版本号，版本号只是批次标签
	current, err := s.files.MaxVersion(ctx, requirementID)
	if err != nil {
		log.Error("Failed to read max version", zap.Error(err))
		return nil, apperr.Internal("read max version", err)
	}
	version := current + 1
	prefix := storage.SubmissionPrefix(req.ProjectID, requirementID, version)

	result := &InitResult{
		BatchID:       uuid.NewString(),
		RequirementID: requirementID,
		Version:       version,
		Placements:    make([]Placement, 0, len(files)),
	}
	for i, f := range files {
		key := storage.ObjectKey(prefix, s.newToken(), f.Name)
		signed, err := s.presigner.PresignPut(ctx, key, s.opts.UploadTTL)
		if err != nil {
			log.Error("Failed to presign upload",
				zap.String("project_id", req.ProjectID),
				zap.String("storage_key", key),
				zap.Error(err),
			)
			return nil, apperr.Internal("presign upload", err)
		}
		result.Placements = append(result.Placements, Placement{
			Index:      i,
			FileName:   f.Name,
			StorageKey: key,
			URL:        signed.URL,
			Method:     signed.Method,
			Headers:    signed.Headers,
			ExpiresAt:  signed.ExpiresAt,
		})
	}

	metrics.AddUploadFiles("init", len(files))
	log.Info("Upload placements issued",
		zap.String("batch_id", result.BatchID),
		zap.Int("version", version),
		zap.Int("file_count", len(files)),
	)
	return result, nil
}

func (s *Service) validateBatch(n int) error {
	if n < 1 || n > s.opts.MaxFiles {
		return apperr.Validation("batch must contain between 1 and %d files", s.opts.MaxFiles)
	}
	return nil
}

// Complete 第二阶段：记录客户端声明已上传的文件，需求进入 review
func (s *Service) Complete(ctx context.Context, callerID, requirementID string, version int, items []UploadedItem) (*CompleteResult, error) {
	ctx, span := otel.StartSpan(ctx, "upload.Complete")
	defer span.End()

	log := logger.WithTrace(ctx, s.logger).With(
		zap.String("requirement_id", requirementID),
		zap.String("caller_id", callerID),
	)

	// 不信任第一阶段的授权结果
	req, _, err := s.loadGranted(ctx, callerID, requirementID)
	if err != nil {
		return nil, err
	}

	if version <= 0 {
		return nil, apperr.Validation("version must be a positive integer")
	}
	if err := s.validateBatch(len(items)); err != nil {
		return nil, err
	}

	prefix := storage.SubmissionPrefix(req.ProjectID, requirementID, version)
	seen := make(map[string]bool, len(items))
	for i, it := range items {
		if strings.TrimSpace(it.OriginalName) == "" {
			return nil, apperr.Validation("item %d: original_name is required", i)
		}
		if !storage.KeyUnder(it.StorageKey, prefix) {
			return nil, apperr.Validation("item %d: storage_key is not a placement for version %d", i, version)
		}
		if seen[it.StorageKey] {
			return nil, apperr.Validation("item %d: duplicate storage_key", i)
		}
		seen[it.StorageKey] = true
	}

	current, err := s.files.MaxVersion(ctx, requirementID)
	if err != nil {
		log.Error("Failed to read max version", zap.Error(err))
		return nil, apperr.Internal("read max version", err)
	}
	if version < current {
		return nil, apperr.Validation("version %d is stale; latest submission is version %d", version, current)
	}
	if version > current+1 {
		return nil, apperr.Validation("version %d was not issued; next version is %d", version, current+1)
	}

	// 快速失败；最终以行锁内的状态为准
	if _, err := req.Status.Next(model.EventSubmission); err != nil {
		return nil, apperr.Validation("requirement is %s and accepts no further submissions", req.Status)
	}

	rows := make([]*model.FileVersion, 0, len(items))
	names := make([]string, 0, len(items))
	for _, it := range items {
		rows = append(rows, &model.FileVersion{
			StoragePath:   it.StorageKey,
			OriginalName:  strings.TrimSpace(it.OriginalName),
			VersionNumber: version,
			UploadedBy:    callerID,
		})
		names = append(names, strings.TrimSpace(it.OriginalName))
	}

	tr, err := s.requirements.AppendSubmission(ctx, requirementID, version, rows)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			return nil, err
		case errors.Is(err, model.ErrInvalidTransition):
			log.Warn("Submission lost race with a status change", zap.String("status", string(tr.From)))
			return nil, apperr.Validation("requirement is %s and accepts no further submissions", tr.From)
		case errors.Is(err, model.ErrVersionConflict):
			log.Warn("Submission version no longer current", zap.Int("version", version))
			return nil, apperr.Validation("version %d is no longer current; start a new upload", version)
		}
		log.Error("Failed to record submission",
			zap.String("project_id", req.ProjectID),
			zap.Int("version", version),
			zap.Error(err),
		)
		return nil, apperr.Internal("record submission", err)
	}

	s.sink.Record(ctx, audit.Entry{
		ActorID:    callerID,
		Action:     audit.ActionUpdate,
		EntityType: "document_requirement",
		EntityID:   requirementID,
		Before:     map[string]any{"status": tr.From},
		After: map[string]any{
			"status":     tr.To,
			"file_count": len(rows),
			"version":    version,
			"filenames":  names,
		},
	})

	metrics.AddUploadFiles("complete", len(rows))
	log.Info("Submission completed",
		zap.String("project_id", req.ProjectID),
		zap.Int("version", version),
		zap.Int("file_count", len(rows)),
	)

	return &CompleteResult{
		RequirementID: requirementID,
		Version:       version,
		Status:        tr.To,
		Files:         rows,
	}, nil
}

// SignedFileDownload 为已提交的文件签发下载 URL。文件 id 本身不授予任何权限。
func (s *Service) SignedFileDownload(ctx context.Context, callerID, fileID string) (*Download, error) {
	f, err := s.files.GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
		return nil, apperr.Internal("load file", err)
	}
	if _, _, err := s.loadGranted(ctx, callerID, f.RequirementID); err != nil {
		return nil, err
	}
	return s.signDownload(ctx, f.StoragePath, f.OriginalName)
}

// SignedAttachmentDownload 为需求的模板附件签发下载 URL
func (s *Service) SignedAttachmentDownload(ctx context.Context, callerID, requirementID string) (*Download, error) {
	req, _, err := s.loadGranted(ctx, callerID, requirementID)
	if err != nil {
		return nil, err
	}
	if req.AttachmentPath == nil || *req.AttachmentPath == "" {
		return nil, fmt.Errorf("requirement %s has no attachment: %w", requirementID, apperr.ErrNotFound)
	}
	path := *req.AttachmentPath
	return s.signDownload(ctx, path, path[strings.LastIndex(path, "/")+1:])
}

func (s *Service) signDownload(ctx context.Context, key, name string) (*Download, error) {
	signed, err := s.presigner.PresignGet(ctx, key, s.opts.DownloadTTL)
	if err != nil {
		logger.WithTrace(ctx, s.logger).Error("Failed to presign download",
			zap.String("storage_key", key),
			zap.Error(err),
		)
		return nil, apperr.Internal("presign download", err)
	}
	return &Download{URL: signed.URL, FileName: name, ExpiresAt: signed.ExpiresAt}, nil
}

// AttachmentPlacement 为审核方上传模板附件签发 URL，之后通过更新需求写入 attachment_path
func (s *Service) AttachmentPlacement(ctx context.Context, callerID, requirementID, name string) (*Placement, error) {
	req, grant, err := s.loadGranted(ctx, callerID, requirementID)
	if err != nil {
		return nil, err
	}
	if !grant.CanEditStructure() {
		return nil, fmt.Errorf("attachment upload: %w", apperr.ErrForbidden)
	}
	if strings.TrimSpace(name) == "" {
		return nil, apperr.Validation("name is required")
	}

	key := storage.ObjectKey(storage.AttachmentPrefix(req.ProjectID, requirementID), s.newToken(), name)
	signed, err := s.presigner.PresignPut(ctx, key, s.opts.UploadTTL)
	if err != nil {
		return nil, apperr.Internal("presign attachment upload", err)
	}
	return &Placement{
		FileName:   name,
		StorageKey: key,
		URL:        signed.URL,
		Method:     signed.Method,
		Headers:    signed.Headers,
		ExpiresAt:  signed.ExpiresAt,
	}, nil
}
