package repository

import (
	"errors"
	"fmt"

	"docportal/internal/apperr"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// notFoundOr 把 pgx.ErrNoRows 转成 apperr.ErrNotFound，其他错误原样返回
func notFoundOr(err error, entity, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(entity, id)
	}
	return err
}

// isInvalidUUID 非法 uuid 文本按“不存在”处理，而不是数据库错误
func isInvalidUUID(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "22P02"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

func lookupErr(err error, entity, id string) error {
	if isInvalidUUID(err) {
		return apperr.NotFound(entity, id)
	}
	if err := notFoundOr(err, entity, id); errors.Is(err, apperr.ErrNotFound) {
		return err
	}
	return fmt.Errorf("failed to load %s %s: %w", entity, id, err)
}
