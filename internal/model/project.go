package model

import "time"

type ProjectStatus string

const (
	ProjectContracting    ProjectStatus = "contracting"
	ProjectImplementation ProjectStatus = "implementation"
	ProjectMonitoring     ProjectStatus = "monitoring"
)

// Valid 是否为已知的项目阶段
func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectContracting, ProjectImplementation, ProjectMonitoring:
		return true
	}
	return false
}

type Project struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	ClientID  string        `json:"client_id"`
	Status    ProjectStatus `json:"status"`
	CreatedBy string        `json:"created_by"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// ProjectMember 顾问与项目的关联，(project_id, consultant_id) 唯一
type ProjectMember struct {
	ProjectID    string    `json:"project_id"`
	ConsultantID string    `json:"consultant_id"`
	Email        string    `json:"email,omitempty"`
	FullName     string    `json:"full_name,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
