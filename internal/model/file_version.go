package model

import "time"

// FileVersion 一次提交中的单个文件。只追加；唯一可变字段是最新一行的 Comment。
// 同一批次的多行共享 VersionNumber。
type FileVersion struct {
	ID            string    `json:"id"`
	RequirementID string    `json:"requirement_id"`
	StoragePath   string    `json:"storage_path"`
	OriginalName  string    `json:"original_name"`
	VersionNumber int       `json:"version_number"`
	Comment       *string   `json:"comment,omitempty"`
	UploadedBy    string    `json:"uploaded_by"`
	CreatedAt     time.Time `json:"created_at"`
}
