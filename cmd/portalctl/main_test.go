package main

import (
	"bytes"
	"strings"
	"testing"

	"docportal/pkg/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHash_FromStdin(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetIn(strings.NewReader("s3cret-pass\n"))
	rootCmd.SetArgs([]string{"password", "hash"})

	require.NoError(t, rootCmd.Execute())
	hash := strings.TrimSpace(out.String())
	assert.True(t, util.CheckPassword("s3cret-pass", hash))
}

func TestUserCreate_RejectsUnknownRole(t *testing.T) {
	rootCmd.SetArgs([]string{"user", "create", "--email", "a@b.c", "--password", "x", "--role", "superuser"})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown role")
}
