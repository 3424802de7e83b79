package repository

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

var (
	// ErrDuplicate は一意制約違反を表す。
	ErrDuplicate = errors.New("duplicate key")
	// ErrVersionConflict は楽観ロックのバージョン不一致を表す。
	ErrVersionConflict = errors.New("version conflict")
	// ErrNotFound は更新・削除対象の行が存在しないことを表す。
	ErrNotFound = errors.New("row not found")
	// ErrAlreadyConfirmed は未確認のユーザー行が存在しないことを表す。
	ErrAlreadyConfirmed = errors.New("email already confirmed")
)

// 一意制約の名前。マイグレーションの定義と一致させる。
const (
	ConstraintUserEmail    = "users_email_key"
	ConstraintUserUsername = "users_username_key"
	ConstraintListingTitle = "listings_title_key"
	ConstraintCategoryName = "categories_name_key"
)

// DuplicateError は違反した一意制約の名前を保持する。
// errors.Is(err, ErrDuplicate) で判定できる。
type DuplicateError struct {
	Constraint string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate key violates %s", e.Constraint)
}

// Is はErrDuplicateとの比較でtrueを返す。
func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicate
}

// uniqueViolation はPostgreSQLの一意制約違反コード。
const uniqueViolation = "23505"

// mapWriteError は書き込み時のドライバエラーをリポジトリのエラーに変換する。
func mapWriteError(err error, action string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return &DuplicateError{Constraint: pqErr.Constraint}
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}
