package rbac

// Role 全局角色，只有三种取值
type Role string

// 角色常量
const (
	RoleAdmin      Role = "admin"
	RoleConsultant Role = "consultant"
	RoleClient     Role = "client"
)

// ParseRole 把数据库中的角色字符串转成 Role；未知值返回 false
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleAdmin, RoleConsultant, RoleClient:
		return Role(s), true
	}
	return "", false
}

func (r Role) String() string { return string(r) }

// 权限常量
const (
	// 项目内普通操作
	PermissionViewProject    = "project:view"
	PermissionUploadDocument = "document:upload"
	PermissionDownloadFile   = "file:download"

	// 结构性内容（需求、项目）的创建和编辑
	PermissionEditStructure = "structure:edit"
	PermissionReview        = "document:review"

	// 敏感操作权限
	PermissionDeleteStructure = "structure:delete"
	PermissionManageMembers   = "member:manage"
	PermissionReplayOutbox    = "outbox:replay"
)

// 角色权限映射
var rolePermissions = map[Role][]string{
	RoleClient: {
		PermissionViewProject,
		PermissionUploadDocument,
		PermissionDownloadFile,
	},
	RoleConsultant: {
		PermissionViewProject,
		PermissionUploadDocument,
		PermissionDownloadFile,
		PermissionEditStructure,
		PermissionReview,
	},
	RoleAdmin: {
		PermissionViewProject,
		PermissionUploadDocument,
		PermissionDownloadFile,
		PermissionEditStructure,
		PermissionReview,
		PermissionDeleteStructure,
		PermissionManageMembers,
		PermissionReplayOutbox,
	},
}

// HasPermission 检查角色是否有指定权限
func HasPermission(role Role, permission string) bool {
	permissions, ok := rolePermissions[role]
	if !ok {
		return false
	}

	for _, p := range permissions {
		if p == permission {
			return true
		}
	}
	return false
}
