package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/estatehub/internal/model"
)

// PostgresFavoriteRepo はPostgreSQLを使用したお気に入りリポジトリ。
type PostgresFavoriteRepo struct {
	db *sql.DB
}

// NewPostgresFavoriteRepo はPostgresFavoriteRepoを生成する。
func NewPostgresFavoriteRepo(db *sql.DB) *PostgresFavoriteRepo {
	return &PostgresFavoriteRepo{db: db}
}

// Add はお気に入りを追加する。登録済みの場合は何もしない。
func (r *PostgresFavoriteRepo) Add(ctx context.Context, userID, listingID int64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO favorites (user_id, listing_id) VALUES ($1, $2)
		 ON CONFLICT (user_id, listing_id) DO NOTHING`,
		userID, listingID,
	)
	if err != nil {
		return fmt.Errorf("failed to add favorite: %w", err)
	}
	return nil
}

// Remove はお気に入りを削除する。未登録の場合は何もしない。
func (r *PostgresFavoriteRepo) Remove(ctx context.Context, userID, listingID int64) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM favorites WHERE user_id = $1 AND listing_id = $2`,
		userID, listingID,
	)
	if err != nil {
		return fmt.Errorf("failed to remove favorite: %w", err)
	}
	return nil
}

// ListByUserID はユーザーのお気に入り物件を登録日時の降順で返す。
func (r *PostgresFavoriteRepo) ListByUserID(ctx context.Context, userID int64) ([]*model.Listing, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+qualifiedListingColumns("l")+`
		 FROM favorites f
		 JOIN listings l ON l.id = f.listing_id
		 WHERE f.user_id = $1
		 ORDER BY f.created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list favorites: %w", err)
	}
	defer rows.Close()

	listings := make([]*model.Listing, 0)
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan favorite: %w", err)
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate favorites: %w", err)
	}
	return listings, nil
}

// compile-time interface check
var _ FavoriteRepository = (*PostgresFavoriteRepo)(nil)
