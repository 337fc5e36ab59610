package model

import (
	"errors"
	"time"
)

// RequirementStatus 文档需求的审核状态
type RequirementStatus string

const (
	StatusPending  RequirementStatus = "pending"
	StatusReview   RequirementStatus = "review"
	StatusApproved RequirementStatus = "approved"
	StatusRejected RequirementStatus = "rejected"
)

// RequirementEvent 驱动状态迁移的事件
type RequirementEvent string

const (
	EventSubmission RequirementEvent = "submission"
	EventApprove    RequirementEvent = "approve"
	EventReject     RequirementEvent = "reject"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrVersionConflict 提交的版本号既不是当前最大版本也不是下一个版本
	ErrVersionConflict = errors.New("submission version conflict")
)

// Transition 一次事件作用前后的状态
type Transition struct {
	From RequirementStatus
	To   RequirementStatus
}

// AcceptsVersion 提交的版本号只能等于当前最大版本（同一批次的迟到文件）或其下一个
func AcceptsVersion(version, latest int) bool {
	return version >= latest && version <= latest+1
}

// transitions 状态迁移表。approved 只接受重复的 approve（no-op）；
// rejected 上重复 reject 只覆盖最新文件的备注。
var transitions = map[RequirementStatus]map[RequirementEvent]RequirementStatus{
	StatusPending: {
		EventSubmission: StatusReview,
	},
	StatusReview: {
		EventSubmission: StatusReview,
		EventApprove:    StatusApproved,
		EventReject:     StatusRejected,
	},
	StatusRejected: {
		EventSubmission: StatusReview,
		EventReject:     StatusRejected,
	},
	StatusApproved: {
		EventApprove: StatusApproved,
	},
}

// Next 返回事件作用后的状态
func (s RequirementStatus) Next(event RequirementEvent) (RequirementStatus, error) {
	next, ok := transitions[s][event]
	if !ok {
		return s, ErrInvalidTransition
	}
	return next, nil
}

func (s RequirementStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// DocumentRequirement "项目需要文档 X"
type DocumentRequirement struct {
	ID             string            `json:"id"`
	ProjectID      string            `json:"project_id"`
	ActivityID     *string           `json:"activity_id,omitempty"`
	Name           string            `json:"name"`
	Description    string            `json:"description"`
	Mandatory      bool              `json:"mandatory"`
	AttachmentPath *string           `json:"attachment_path,omitempty"`
	Deadline       *time.Time        `json:"deadline,omitempty"`
	CreatedBy      string            `json:"created_by"`
	Status         RequirementStatus `json:"status"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// RequirementWithFiles 列表接口返回的聚合视图，Files 按创建时间倒序
type RequirementWithFiles struct {
	DocumentRequirement
	Files []FileVersion `json:"files"`
}
