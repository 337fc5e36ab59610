package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRole(t *testing.T) {
	for _, s := range []string{"admin", "consultant", "client"} {
		r, ok := ParseRole(s)
		assert.True(t, ok, s)
		assert.Equal(t, s, r.String())
	}

	for _, s := range []string{"", "Admin", "owner", "superuser"} {
		_, ok := ParseRole(s)
		assert.False(t, ok, s)
	}
}

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role       Role
		permission string
		want       bool
	}{
		{RoleClient, PermissionUploadDocument, true},
		{RoleClient, PermissionEditStructure, false},
		{RoleClient, PermissionReview, false},
		{RoleConsultant, PermissionEditStructure, true},
		{RoleConsultant, PermissionReview, true},
		{RoleConsultant, PermissionDeleteStructure, false},
		{RoleConsultant, PermissionManageMembers, false},
		{RoleAdmin, PermissionDeleteStructure, true},
		{RoleAdmin, PermissionReplayOutbox, true},
		{Role("ghost"), PermissionViewProject, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, HasPermission(tt.role, tt.permission), "%s/%s", tt.role, tt.permission)
	}
}
