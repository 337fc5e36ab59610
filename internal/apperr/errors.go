// Package apperr defines the error kinds shared by services and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("not permitted")
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation error")
	ErrInternal        = errors.New("internal error")
	ErrTooManyRequests = errors.New("too many attempts, try again later")

	// ErrRoleLookupFailed 角色查询本身失败，属于服务端错误
	ErrRoleLookupFailed = fmt.Errorf("role lookup failed: %w", ErrInternal)
)

// ValidationError 携带可以直接返回给调用方的提示
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Validation 构造一个 ValidationError
func Validation(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// NotFound 包装 ErrNotFound，附带实体描述
func NotFound(entity, id string) error {
	return fmt.Errorf("%s %s: %w", entity, id, ErrNotFound)
}

// Internal 包装下游错误为 ErrInternal，保留原始错误用于日志
func Internal(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(ErrInternal, err))
}
