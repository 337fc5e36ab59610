package storage

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

const maxNameBytes = 200

// SubmissionPrefix 客户提交文件的规范前缀
func SubmissionPrefix(projectID, requirementID string, version int) string {
	return fmt.Sprintf("submissions/%s/%s/v%d/", projectID, requirementID, version)
}

// AttachmentPrefix 审核方模板附件的前缀
func AttachmentPrefix(projectID, requirementID string) string {
	return fmt.Sprintf("attachments/%s/%s/", projectID, requirementID)
}

// ObjectKey prefix + token + "-" + 清洗后的文件名
func ObjectKey(prefix, token, name string) string {
	return prefix + token + "-" + SanitizeName(name)
}

// SanitizeName 只保留最后一个路径段，去掉控制字符；结果不会包含 / 或 \，
// 也不会是 "." 或 ".."
func SanitizeName(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}

	name = strings.Map(func(r rune) rune {
		if r == utf8.RuneError || unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	name = strings.Trim(name, ".")

	if len(name) > maxNameBytes {
		cut := maxNameBytes
		for cut > 0 && !utf8.RuneStart(name[cut]) {
			cut--
		}
		name = name[:cut]
	}
	if name == "" {
		return "file"
	}
	return name
}

// KeyUnder key 是否是 prefix 下的单层对象（不含子目录）
func KeyUnder(key, prefix string) bool {
	if !strings.HasPrefix(key, prefix) {
		return false
	}
	rest := key[len(prefix):]
	if rest == "" || rest == "." || rest == ".." || strings.ContainsAny(rest, `/\`) {
		return false
	}
	for _, r := range rest {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}
