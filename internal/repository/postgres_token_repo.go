package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/estatehub/internal/model"
)

// PostgresTokenRepo はPostgreSQLを使用したトークン台帳リポジトリ。
type PostgresTokenRepo struct {
	db *sql.DB
}

// NewPostgresTokenRepo はPostgresTokenRepoを生成する。
func NewPostgresTokenRepo(db *sql.DB) *PostgresTokenRepo {
	return &PostgresTokenRepo{db: db}
}

// Create はレコードを追加し、採番したIDを設定する。
func (r *PostgresTokenRepo) Create(ctx context.Context, record *model.TokenRecord) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO tokens (token_digest, user_id, is_valid)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at, updated_at`,
		record.TokenDigest, record.UserID, record.Valid,
	).Scan(&record.ID, &record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		return mapWriteError(err, "insert token")
	}
	return nil
}

// FindByDigest はダイジェストでレコードを取得する。見つからない場合はnilを返す。
func (r *PostgresTokenRepo) FindByDigest(ctx context.Context, digest string) (*model.TokenRecord, error) {
	record := &model.TokenRecord{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, token_digest, user_id, is_valid, created_at, updated_at
		 FROM tokens WHERE token_digest = $1`,
		digest,
	).Scan(&record.ID, &record.TokenDigest, &record.UserID, &record.Valid, &record.CreatedAt, &record.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find token: %w", err)
	}
	return record, nil
}

// InvalidateByDigest はレコードを無効化する。対象がなくてもエラーにしない。
func (r *PostgresTokenRepo) InvalidateByDigest(ctx context.Context, digest string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE tokens SET is_valid = false, updated_at = now()
		 WHERE token_digest = $1 AND is_valid = true`,
		digest,
	)
	if err != nil {
		return fmt.Errorf("failed to invalidate token: %w", err)
	}
	return nil
}

// InvalidateByUserID はユーザーの有効なレコードを全て無効化し、対象のダイジェストを返す。
func (r *PostgresTokenRepo) InvalidateByUserID(ctx context.Context, userID int64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`UPDATE tokens SET is_valid = false, updated_at = now()
		 WHERE user_id = $1 AND is_valid = true
		 RETURNING token_digest`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to invalidate user tokens: %w", err)
	}
	defer rows.Close()

	var digests []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan token digest: %w", err)
		}
		digests = append(digests, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate token digests: %w", err)
	}
	return digests, nil
}

// compile-time interface check
var _ TokenRepository = (*PostgresTokenRepo)(nil)
