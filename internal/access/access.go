// Package access decides whether a caller may act on a project.
//
// Evaluator is the only code that looks at a caller's role. Everything else
// receives a Grant and asks it capability questions.
package access

import (
	"context"
	"errors"
	"fmt"

	"docportal/internal/apperr"
	"docportal/internal/repository"
	"docportal/pkg/metrics"
	"docportal/pkg/rbac"

	"go.uber.org/zap"
)

// Grant 调用方在某个项目上的授权结果，只能由 Evaluator 构造
type Grant struct {
	projectID string
	callerID  string
	role      rbac.Role
}

func (g Grant) ProjectID() string { return g.projectID }
func (g Grant) CallerID() string  { return g.callerID }

// Tier 授权层级：admin / client（项目所有者）/ consultant（项目成员）
func (g Grant) Tier() string { return g.role.String() }

// CanEditStructure 创建、编辑需求等结构性内容
func (g Grant) CanEditStructure() bool {
	return rbac.HasPermission(g.role, rbac.PermissionEditStructure)
}

// CanDeleteStructure 删除结构性内容，仅 admin
func (g Grant) CanDeleteStructure() bool {
	return rbac.HasPermission(g.role, rbac.PermissionDeleteStructure)
}

func (g Grant) CanReview() bool {
	return rbac.HasPermission(g.role, rbac.PermissionReview)
}

func (g Grant) CanManageMembers() bool {
	return rbac.HasPermission(g.role, rbac.PermissionManageMembers)
}

// Scope 列出项目时的可见范围
type Scope int

const (
	ScopeNone Scope = iota
	ScopeAll
	ScopeMember
	ScopeOwned
)

// Caller 与项目无关的全局身份，用于创建项目、列出项目等操作
type Caller struct {
	id   string
	role rbac.Role
}

func (c Caller) ID() string   { return c.id }
func (c Caller) Role() string { return c.role.String() }

func (c Caller) Has(permission string) bool {
	return rbac.HasPermission(c.role, permission)
}

func (c Caller) ProjectScope() Scope {
	switch c.role {
	case rbac.RoleAdmin:
		return ScopeAll
	case rbac.RoleConsultant:
		return ScopeMember
	case rbac.RoleClient:
		return ScopeOwned
	}
	return ScopeNone
}

// IsConsultantRole / IsClientRole 判断任意用户（非调用方）的角色，
// 用于校验“项目客户必须是 client”“成员必须是 consultant”
func IsConsultantRole(role string) bool {
	r, ok := rbac.ParseRole(role)
	return ok && r == rbac.RoleConsultant
}

func IsClientRole(role string) bool {
	r, ok := rbac.ParseRole(role)
	return ok && r == rbac.RoleClient
}

type Evaluator struct {
	users    repository.UserRepository
	projects repository.ProjectRepository
	logger   *zap.Logger
}

func NewEvaluator(users repository.UserRepository, projects repository.ProjectRepository, logger *zap.Logger) *Evaluator {
	return &Evaluator{users: users, projects: projects, logger: logger}
}

// EvaluateRole 查询调用方的全局角色。档案缺失或角色未知返回 ErrForbidden。
func (e *Evaluator) EvaluateRole(ctx context.Context, callerID string) (Caller, error) {
	u, err := e.users.GetByID(ctx, callerID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			metrics.IncrementAccessDecision("forbidden")
			return Caller{}, fmt.Errorf("caller %s has no profile: %w", callerID, apperr.ErrForbidden)
		}
		metrics.IncrementAccessDecision("error")
		e.logger.Error("Role lookup failed",
			zap.String("caller_id", callerID),
			zap.Error(err),
		)
		return Caller{}, fmt.Errorf("%w: %v", apperr.ErrRoleLookupFailed, err)
	}

	role, ok := rbac.ParseRole(u.Role)
	if !ok {
		metrics.IncrementAccessDecision("forbidden")
		return Caller{}, fmt.Errorf("caller %s has unknown role %q: %w", callerID, u.Role, apperr.ErrForbidden)
	}
	return Caller{id: callerID, role: role}, nil
}

// Evaluate 判断调用方能否操作项目。每次请求都重新查询，不做缓存。
func (e *Evaluator) Evaluate(ctx context.Context, projectID, callerID string) (Grant, error) {
	caller, err := e.EvaluateRole(ctx, callerID)
	if err != nil {
		return Grant{}, err
	}

	// admin 旁路只在这里
	if caller.role == rbac.RoleAdmin {
		metrics.IncrementAccessDecision("allowed")
		return Grant{projectID: projectID, callerID: callerID, role: rbac.RoleAdmin}, nil
	}

	project, err := e.projects.GetByID(ctx, projectID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			metrics.IncrementAccessDecision("not_found")
			return Grant{}, err
		}
		metrics.IncrementAccessDecision("error")
		return Grant{}, apperr.Internal("load project", err)
	}

	var allowed bool
	switch caller.role {
	case rbac.RoleClient:
		allowed = project.ClientID == callerID
	case rbac.RoleConsultant:
		allowed, err = e.projects.IsMember(ctx, projectID, callerID)
		if err != nil {
			metrics.IncrementAccessDecision("error")
			return Grant{}, apperr.Internal("check membership", err)
		}
	}

	if !allowed {
		metrics.IncrementAccessDecision("forbidden")
		e.logger.Debug("Project access denied",
			zap.String("project_id", projectID),
			zap.String("caller_id", callerID),
		)
		return Grant{}, fmt.Errorf("project %s: %w", projectID, apperr.ErrForbidden)
	}

	metrics.IncrementAccessDecision("allowed")
	return Grant{projectID: projectID, callerID: callerID, role: caller.role}, nil
}
