package project

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"docportal/internal/access"
	"docportal/internal/apperr"
	"docportal/internal/audit"
	"docportal/internal/model"
	"docportal/internal/repository"
	"docportal/pkg/logger"
	"docportal/pkg/rbac"

	"go.uber.org/zap"
)

type CreateInput struct {
	Title    string              `json:"title"`
	ClientID string              `json:"client_id"`
	Status   model.ProjectStatus `json:"status"`
}

type Service struct {
	users     repository.UserRepository
	projects  repository.ProjectRepository
	evaluator *access.Evaluator
	sink      audit.Sink
	logger    *zap.Logger
}

func NewService(users repository.UserRepository, projects repository.ProjectRepository, evaluator *access.Evaluator, sink audit.Sink, logger *zap.Logger) *Service {
	return &Service{
		users:     users,
		projects:  projects,
		evaluator: evaluator,
		sink:      sink,
		logger:    logger,
	}
}

// Create admin / consultant 为客户创建项目；consultant 创建时自动成为成员
func (s *Service) Create(ctx context.Context, callerID string, in CreateInput) (*model.Project, error) {
	caller, err := s.evaluator.EvaluateRole(ctx, callerID)
	if err != nil {
		return nil, err
	}
	if !caller.Has(rbac.PermissionEditStructure) {
		return nil, fmt.Errorf("create project: %w", apperr.ErrForbidden)
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperr.Validation("title is required")
	}
	if in.Status == "" {
		in.Status = model.ProjectContracting
	}
	if !in.Status.Valid() {
		return nil, apperr.Validation("status must be contracting, implementation or monitoring")
	}
	if err := s.requireRole(ctx, in.ClientID, access.IsClientRole, "client_id must reference a client"); err != nil {
		return nil, err
	}

	p := &model.Project{
		Title:     title,
		ClientID:  in.ClientID,
		Status:    in.Status,
		CreatedBy: callerID,
	}
	member := ""
	if caller.ProjectScope() == access.ScopeMember {
		member = callerID
	}
	if err := s.projects.Create(ctx, p, member); err != nil {
		logger.WithTrace(ctx, s.logger).Error("Failed to create project",
			zap.String("caller_id", callerID),
			zap.Error(err),
		)
		return nil, apperr.Internal("create project", err)
	}

	s.sink.Record(ctx, audit.Entry{
		ActorID:    callerID,
		Action:     audit.ActionCreate,
		EntityType: "project",
		EntityID:   p.ID,
		After:      p,
	})
	return p, nil
}

// requireRole 校验被引用的用户存在且角色符合要求
func (s *Service) requireRole(ctx context.Context, userID string, ok func(string) bool, msg string) error {
	if userID == "" {
		return apperr.Validation("%s", msg)
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.Validation("%s", msg)
		}
		return apperr.Internal("load user", err)
	}
	if !ok(u.Role) {
		return apperr.Validation("%s", msg)
	}
	return nil
}

// List admin 看全部，consultant 看参与的，client 看自己的
func (s *Service) List(ctx context.Context, callerID string) ([]model.Project, error) {
	caller, err := s.evaluator.EvaluateRole(ctx, callerID)
	if err != nil {
		return nil, err
	}

	var projects []model.Project
	switch caller.ProjectScope() {
	case access.ScopeAll:
		projects, err = s.projects.List(ctx)
	case access.ScopeMember:
		projects, err = s.projects.ListByConsultant(ctx, callerID)
	case access.ScopeOwned:
		projects, err = s.projects.ListByClient(ctx, callerID)
	default:
		return nil, fmt.Errorf("list projects: %w", apperr.ErrForbidden)
	}
	if err != nil {
		return nil, apperr.Internal("list projects", err)
	}
	return projects, nil
}

func (s *Service) Get(ctx context.Context, callerID, projectID string) (*model.Project, error) {
	if _, err := s.evaluator.Evaluate(ctx, projectID, callerID); err != nil {
		return nil, err
	}
	p, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
		return nil, apperr.Internal("load project", err)
	}
	return p, nil
}

func (s *Service) ListMembers(ctx context.Context, callerID, projectID string) ([]model.ProjectMember, error) {
	if _, err := s.Get(ctx, callerID, projectID); err != nil {
		return nil, err
	}
	members, err := s.projects.ListMembers(ctx, projectID)
	if err != nil {
		return nil, apperr.Internal("list members", err)
	}
	return members, nil
}

func (s *Service) managed(ctx context.Context, callerID, projectID string) error {
	grant, err := s.evaluator.Evaluate(ctx, projectID, callerID)
	if err != nil {
		return err
	}
	if !grant.CanManageMembers() {
		return fmt.Errorf("manage members: %w", apperr.ErrForbidden)
	}
	if _, err := s.projects.GetByID(ctx, projectID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return err
		}
		return apperr.Internal("load project", err)
	}
	return nil
}

// AddMember 幂等；被加入的用户必须是 consultant
func (s *Service) AddMember(ctx context.Context, callerID, projectID, consultantID string) error {
	if err := s.managed(ctx, callerID, projectID); err != nil {
		return err
	}
	if err := s.requireRole(ctx, consultantID, access.IsConsultantRole, "consultant_id must reference a consultant"); err != nil {
		return err
	}
	if err := s.projects.AddMember(ctx, projectID, consultantID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return err
		}
		return apperr.Internal("add member", err)
	}

	s.sink.Record(ctx, audit.Entry{
		ActorID:    callerID,
		Action:     audit.ActionCreate,
		EntityType: "project_membership",
		EntityID:   projectID + ":" + consultantID,
	})
	return nil
}

func (s *Service) RemoveMember(ctx context.Context, callerID, projectID, consultantID string) error {
	if err := s.managed(ctx, callerID, projectID); err != nil {
		return err
	}
	if err := s.projects.RemoveMember(ctx, projectID, consultantID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return err
		}
		return apperr.Internal("remove member", err)
	}

	s.sink.Record(ctx, audit.Entry{
		ActorID:    callerID,
		Action:     audit.ActionDelete,
		EntityType: "project_membership",
		EntityID:   projectID + ":" + consultantID,
	})
	return nil
}
