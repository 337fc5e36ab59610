package requirement

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

	"go.uber.org/zap"
)

const entityType = "document_requirement"

type CreateInput struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Mandatory   bool       `json:"mandatory"`
	ActivityID  *string    `json:"activity_id,omitempty"`
	Deadline    *time.Time `json:"deadline,omitempty"`
}

// Patch 只更新非 nil 字段。ClearDeadline / ClearAttachment 用于置空。
type Patch struct {
	Name            *string    `json:"name,omitempty"`
	Description     *string    `json:"description,omitempty"`
	Mandatory       *bool      `json:"mandatory,omitempty"`
	Deadline        *time.Time `json:"deadline,omitempty"`
	ClearDeadline   bool       `json:"clear_deadline,omitempty"`
	AttachmentPath  *string    `json:"attachment_path,omitempty"`
	ClearAttachment bool       `json:"clear_attachment,omitempty"`
}

type Service struct {
	projects     repository.ProjectRepository
	requirements repository.RequirementRepository
	files        repository.FileVersionRepository
	evaluator    *access.Evaluator
	sink         audit.Sink
	logger       *zap.Logger
}

func NewService(
	projects repository.ProjectRepository,
	requirements repository.RequirementRepository,
	files repository.FileVersionRepository,
	evaluator *access.Evaluator,
	sink audit.Sink,
	logger *zap.Logger,
) *Service {
	return &Service{
		projects:     projects,
		requirements: requirements,
		files:        files,
		evaluator:    evaluator,
		sink:         sink,
		logger:       logger,
	}
}

// grantOnProject admin 旁路不查项目，这里补一次存在性检查
func (s *Service) grantOnProject(ctx context.Context, callerID, projectID string) (access.Grant, error) {
	grant, err := s.evaluator.Evaluate(ctx, projectID, callerID)
	if err != nil {
		return access.Grant{}, err
	}
	if _, err := s.projects.GetByID(ctx, projectID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return access.Grant{}, err
		}
		return access.Grant{}, apperr.Internal("load project", err)
	}
	return grant, nil
}

func (s *Service) load(ctx context.Context, callerID, id string) (*model.DocumentRequirement, access.Grant, error) {
	req, err := s.requirements.GetByID(ctx, id)
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

func (s *Service) Create(ctx context.Context, callerID, projectID string, in CreateInput) (*model.DocumentRequirement, error) {
	grant, err := s.grantOnProject(ctx, callerID, projectID)
	if err != nil {
		return nil, err
	}
	if !grant.CanEditStructure() {
		return nil, fmt.Errorf("create requirement: %w", apperr.ErrForbidden)
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Validation("name is required")
	}

	req := &model.DocumentRequirement{
		ProjectID:   projectID,
		ActivityID:  in.ActivityID,
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Mandatory:   in.Mandatory,
		Deadline:    in.Deadline,
		CreatedBy:   callerID,
		Status:      model.StatusPending,
	}
	if err := s.requirements.Create(ctx, req); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
		logger.WithTrace(ctx, s.logger).Error("Failed to create requirement",
			zap.String("project_id", projectID),
			zap.String("caller_id", callerID),
			zap.Error(err),
		)
		return nil, apperr.Internal("create requirement", err)
	}

	s.sink.Record(ctx, audit.Entry{
		ActorID:    callerID,
		Action:     audit.ActionCreate,
		EntityType: entityType,
		EntityID:   req.ID,
		After:      req,
	})
	return req, nil
}

// ListByProject 需求按创建时间排序，每个需求的文件按时间倒序
func (s *Service) ListByProject(ctx context.Context, callerID, projectID string) ([]model.RequirementWithFiles, error) {
	if _, err := s.grantOnProject(ctx, callerID, projectID); err != nil {
		return nil, err
	}

	reqs, err := s.requirements.ListByProject(ctx, projectID)
	if err != nil {
		return nil, apperr.Internal("list requirements", err)
	}
	files, err := s.files.ListByProject(ctx, projectID)
	if err != nil {
		return nil, apperr.Internal("list files", err)
	}

	byReq := make(map[string][]model.FileVersion, len(reqs))
	for _, f := range files {
		byReq[f.RequirementID] = append(byReq[f.RequirementID], f)
	}

	out := make([]model.RequirementWithFiles, 0, len(reqs))
	for _, r := range reqs {
		fs := byReq[r.ID]
		if fs == nil {
			fs = []model.FileVersion{}
		}
		out = append(out, model.RequirementWithFiles{DocumentRequirement: r, Files: fs})
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, callerID, id string) (*model.RequirementWithFiles, error) {
	req, _, err := s.load(ctx, callerID, id)
	if err != nil {
		return nil, err
	}
	files, err := s.files.ListByRequirement(ctx, id)
	if err != nil {
		return nil, apperr.Internal("list files", err)
	}
	return &model.RequirementWithFiles{DocumentRequirement: *req, Files: files}, nil
}

// Update 修改可编辑字段；项目归属和状态不在这里修改
func (s *Service) Update(ctx context.Context, callerID, id string, p Patch) (*model.DocumentRequirement, error) {
	req, grant, err := s.load(ctx, callerID, id)
	if err != nil {
		return nil, err
	}
	if !grant.CanEditStructure() {
		return nil, fmt.Errorf("update requirement: %w", apperr.ErrForbidden)
	}

	before := *req
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return nil, apperr.Validation("name must not be empty")
		}
		req.Name = name
	}
	if p.Description != nil {
		req.Description = strings.TrimSpace(*p.Description)
	}
	if p.Mandatory != nil {
		req.Mandatory = *p.Mandatory
	}
	switch {
	case p.ClearDeadline:
		req.Deadline = nil
	case p.Deadline != nil:
		req.Deadline = p.Deadline
	}
	switch {
	case p.ClearAttachment:
		req.AttachmentPath = nil
	case p.AttachmentPath != nil:
		if !storage.KeyUnder(*p.AttachmentPath, storage.AttachmentPrefix(req.ProjectID, req.ID)) {
			return nil, apperr.Validation("attachment_path must be a key issued by the attachment upload endpoint")
		}
		path := *p.AttachmentPath
		req.AttachmentPath = &path
	}

	if err := s.requirements.Update(ctx, req); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
		logger.WithTrace(ctx, s.logger).Error("Failed to update requirement",
			zap.String("requirement_id", id),
			zap.String("project_id", req.ProjectID),
			zap.String("caller_id", callerID),
			zap.Error(err),
		)
		return nil, apperr.Internal("update requirement", err)
	}

	s.sink.Record(ctx, audit.Entry{
		ActorID:    callerID,
		Action:     audit.ActionUpdate,
		EntityType: entityType,
		EntityID:   id,
		Before:     before,
		After:      req,
	})
	return req, nil
}

func (s *Service) Delete(ctx context.Context, callerID, id string) error {
	req, grant, err := s.load(ctx, callerID, id)
	if err != nil {
		return err
	}
	if !grant.CanDeleteStructure() {
		return fmt.Errorf("delete requirement: %w", apperr.ErrForbidden)
	}

	if err := s.requirements.Delete(ctx, id); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return err
		}
		return apperr.Internal("delete requirement", err)
	}

	s.sink.Record(ctx, audit.Entry{
		ActorID:    callerID,
		Action:     audit.ActionDelete,
		EntityType: entityType,
		EntityID:   id,
		Before:     req,
	})
	logger.WithTrace(ctx, s.logger).Info("Requirement deleted",
		zap.String("requirement_id", id),
		zap.String("project_id", req.ProjectID),
		zap.String("caller_id", callerID),
	)
	return nil
}
