package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/estatehub/internal/model"
)

// userColumns はusersテーブルのSELECT対象カラム。scanUserの順序と一致させる。
const userColumns = `id, username, email, password_hash, encrypted_phone,
	profile_image_url, profile_image_public_id, email_confirmed, role, status,
	otp_code, otp_expires_at, is_deleted, version, created_at, updated_at`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	user := &model.User{}
	var otpCode sql.NullString
	var otpExpiresAt sql.NullTime
	err := row.Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.EncryptedPhone,
		&user.ProfileImage.URL, &user.ProfileImage.PublicID, &user.EmailConfirmed, &user.Role, &user.Status,
		&otpCode, &otpExpiresAt, &user.IsDeleted, &user.Version, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if otpCode.Valid && otpExpiresAt.Valid {
		user.OTP = &model.OTP{Code: otpCode.String, ExpiresAt: otpExpiresAt.Time}
	}
	return user, nil
}

func (r *PostgresUserRepo) findOne(ctx context.Context, where string, arg any) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+where+` AND is_deleted = false`,
		arg,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	return r.findOne(ctx, "id = $1", id)
}

// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx, "email = $1", email)
}

// FindByUsername はユーザー名でユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.findOne(ctx, "username = $1", username)
}

func otpArgs(otp *model.OTP) (sql.NullString, sql.NullTime) {
	if otp == nil {
		return sql.NullString{}, sql.NullTime{}
	}
	return sql.NullString{String: otp.Code, Valid: true}, sql.NullTime{Time: otp.ExpiresAt, Valid: true}
}

// Create はユーザーを作成し、採番したIDとバージョンを設定する。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	otpCode, otpExpiresAt := otpArgs(user.OTP)
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO users (username, email, password_hash, encrypted_phone,
			profile_image_url, profile_image_public_id, email_confirmed, role, status,
			otp_code, otp_expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id, version, created_at, updated_at`,
		user.Username, user.Email, user.PasswordHash, user.EncryptedPhone,
		user.ProfileImage.URL, user.ProfileImage.PublicID, user.EmailConfirmed, user.Role, user.Status,
		otpCode, otpExpiresAt,
	).Scan(&user.ID, &user.Version, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return mapWriteError(err, "insert user")
	}
	return nil
}

// UpdateStatus はセッション状態を更新する。
func (r *PostgresUserRepo) UpdateStatus(ctx context.Context, id int64, status model.SessionStatus) error {
	return r.execOne(ctx, "update user status",
		`UPDATE users SET status = $2, updated_at = now() WHERE id = $1`,
		id, status,
	)
}

// UpdatePassword はパスワードハッシュを更新する。
func (r *PostgresUserRepo) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	return r.execOne(ctx, "update user password",
		`UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`,
		id, passwordHash,
	)
}

// UpdateVerification は未確認ユーザーのメール確認状態とOTPを更新する。
// 同時に確認された場合は対象行がなく、ErrAlreadyConfirmedを返す。
func (r *PostgresUserRepo) UpdateVerification(ctx context.Context, user *model.User) error {
	otpCode, otpExpiresAt := otpArgs(user.OTP)
	err := r.execOne(ctx, "update user verification",
		`UPDATE users
		 SET email_confirmed = $2, otp_code = $3, otp_expires_at = $4, updated_at = now()
		 WHERE id = $1 AND email_confirmed = false`,
		user.ID, user.EmailConfirmed, otpCode, otpExpiresAt,
	)
	if errors.Is(err, ErrNotFound) {
		return ErrAlreadyConfirmed
	}
	return err
}

// UpdateProfile はユーザー名・電話番号・プロフィール画像をバージョン一致時のみ更新する。
func (r *PostgresUserRepo) UpdateProfile(ctx context.Context, user *model.User) error {
	var version int64
	err := r.db.QueryRowContext(ctx,
		`UPDATE users
		 SET username = $3, encrypted_phone = $4, profile_image_url = $5, profile_image_public_id = $6,
			version = version + 1, updated_at = now()
		 WHERE id = $1 AND version = $2
		 RETURNING version`,
		user.ID, user.Version, user.Username, user.EncryptedPhone,
		user.ProfileImage.URL, user.ProfileImage.PublicID,
	).Scan(&version)
	if err == sql.ErrNoRows {
		return ErrVersionConflict
	}
	if err != nil {
		return mapWriteError(err, "update user profile")
	}
	user.Version = version
	return nil
}

// DeleteByID は指定IDのユーザーを削除する。
func (r *PostgresUserRepo) DeleteByID(ctx context.Context, id int64) error {
	return r.execOne(ctx, "delete user", `DELETE FROM users WHERE id = $1`, id)
}

// execOne は1行を対象とする更新を実行し、対象がない場合はErrNotFoundを返す。
func (r *PostgresUserRepo) execOne(ctx context.Context, action, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return mapWriteError(err, action)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", action, ErrNotFound)
	}
	return nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
