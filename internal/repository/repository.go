package repository

import (
	"context"

	"docportal/internal/model"
)

// 服务层依赖以下接口；pgx 实现在本包，内存实现在 memory 子包。
// 查询不到时统一返回包装了 apperr.ErrNotFound 的错误。

type UserRepository interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	Create(ctx context.Context, u *model.User) error
}

type ProjectRepository interface {
	// Create 插入项目；initialMember 非空时在同一事务里加入成员表
	Create(ctx context.Context, p *model.Project, initialMember string) error
	GetByID(ctx context.Context, id string) (*model.Project, error)
	List(ctx context.Context) ([]model.Project, error)
	ListByClient(ctx context.Context, clientID string) ([]model.Project, error)
	ListByConsultant(ctx context.Context, consultantID string) ([]model.Project, error)

	IsMember(ctx context.Context, projectID, consultantID string) (bool, error)
	AddMember(ctx context.Context, projectID, consultantID string) error
	RemoveMember(ctx context.Context, projectID, consultantID string) error
	ListMembers(ctx context.Context, projectID string) ([]model.ProjectMember, error)
}

type RequirementRepository interface {
	Create(ctx context.Context, r *model.DocumentRequirement) error
	GetByID(ctx context.Context, id string) (*model.DocumentRequirement, error)
	ListByProject(ctx context.Context, projectID string) ([]model.DocumentRequirement, error)
	// Update 只写可编辑字段，不修改 project_id 和 status
	Update(ctx context.Context, r *model.DocumentRequirement) error
	Delete(ctx context.Context, id string) error

	// AppendSubmission 锁住需求行，对锁内读到的状态应用 submission 事件并校验版本号，
	// 然后在同一事务内插入同一版本号的所有文件并写入新状态。
	// 状态不接受提交时返回 model.ErrInvalidTransition，版本号过期或跳号时返回 model.ErrVersionConflict。
	AppendSubmission(ctx context.Context, requirementID string, version int, files []*model.FileVersion) (model.Transition, error)
	// ApplyDecision 锁住需求行，对锁内读到的状态应用审核事件，写最新文件的备注（note 为 nil 时跳过）并更新状态。
	// approved 上的 approve 不写任何东西。返回被修改的文件，没有文件或未修改时为 nil。
	ApplyDecision(ctx context.Context, requirementID string, event model.RequirementEvent, note *string) (model.Transition, *model.FileVersion, error)
}

type FileVersionRepository interface {
	GetByID(ctx context.Context, id string) (*model.FileVersion, error)
	// ListByRequirement 按 created_at, id 倒序
	ListByRequirement(ctx context.Context, requirementID string) ([]model.FileVersion, error)
	ListByProject(ctx context.Context, projectID string) ([]model.FileVersion, error)
	// MaxVersion 没有任何文件时返回 0
	MaxVersion(ctx context.Context, requirementID string) (int, error)
}

var (
	_ UserRepository        = (*PgUserRepository)(nil)
	_ ProjectRepository     = (*PgProjectRepository)(nil)
	_ RequirementRepository = (*PgRequirementRepository)(nil)
	_ FileVersionRepository = (*PgFileVersionRepository)(nil)
)
