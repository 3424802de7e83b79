package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hitoshi/estatehub/internal/model"
)

var listingFields = []string{
	"id", "title", "slug", "category", "description", "address", "price", "discount",
	"bathrooms", "bedrooms", "furnished", "parking", "purpose", "images", "created_by",
	"version", "created_at", "updated_at",
}

var listingColumns = strings.Join(listingFields, ", ")

// qualifiedListingColumns はテーブル別名付きのカラムリストを返す。
func qualifiedListingColumns(alias string) string {
	cols := make([]string, len(listingFields))
	for i, f := range listingFields {
		cols[i] = alias + "." + f
	}
	return strings.Join(cols, ", ")
}

// PostgresListingRepo はPostgreSQLを使用した物件リポジトリ。
type PostgresListingRepo struct {
	db *sql.DB
}

// NewPostgresListingRepo はPostgresListingRepoを生成する。
func NewPostgresListingRepo(db *sql.DB) *PostgresListingRepo {
	return &PostgresListingRepo{db: db}
}

func scanListing(row rowScanner) (*model.Listing, error) {
	l := &model.Listing{}
	var images []byte
	err := row.Scan(
		&l.ID, &l.Title, &l.Slug, &l.Category, &l.Description, &l.Address, &l.Price, &l.Discount,
		&l.Bathrooms, &l.Bedrooms, &l.Furnished, &l.Parking, &l.Purpose, &images, &l.CreatedBy,
		&l.Version, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(images, &l.Images); err != nil {
		return nil, fmt.Errorf("failed to decode listing images: %w", err)
	}
	return l, nil
}

func encodeImages(images []model.ImageRef) ([]byte, error) {
	if images == nil {
		images = []model.ImageRef{}
	}
	data, err := json.Marshal(images)
	if err != nil {
		return nil, fmt.Errorf("failed to encode listing images: %w", err)
	}
	return data, nil
}

func (r *PostgresListingRepo) findOne(ctx context.Context, where string, arg any) (*model.Listing, error) {
	l, err := scanListing(r.db.QueryRowContext(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE `+where,
		arg,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find listing: %w", err)
	}
	return l, nil
}

// FindByID は指定IDの物件を取得する。見つからない場合はnilを返す。
func (r *PostgresListingRepo) FindByID(ctx context.Context, id int64) (*model.Listing, error) {
	return r.findOne(ctx, "id = $1", id)
}

// FindByTitle はタイトルで物件を検索する。見つからない場合はnilを返す。
func (r *PostgresListingRepo) FindByTitle(ctx context.Context, title string) (*model.Listing, error) {
	return r.findOne(ctx, "title = $1", title)
}

// List は物件一覧をcreated_at降順で返す。
func (r *PostgresListingRepo) List(ctx context.Context, page model.Page) ([]*model.Listing, error) {
	return r.query(ctx,
		`SELECT `+listingColumns+` FROM listings
		 ORDER BY created_at DESC, id DESC
		 LIMIT $1 OFFSET $2`,
		page.PerPage, page.Offset(),
	)
}

// ListByCreator は指定ユーザーが作成した物件一覧をcreated_at降順で返す。
func (r *PostgresListingRepo) ListByCreator(ctx context.Context, userID int64, page model.Page) ([]*model.Listing, error) {
	return r.query(ctx,
		`SELECT `+listingColumns+` FROM listings
		 WHERE created_by = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2 OFFSET $3`,
		userID, page.PerPage, page.Offset(),
	)
}

func (r *PostgresListingRepo) query(ctx context.Context, query string, args ...any) ([]*model.Listing, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}
	defer rows.Close()

	listings := make([]*model.Listing, 0)
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate listings: %w", err)
	}
	return listings, nil
}

// ImagePublicIDsByCreator は指定ユーザーの全物件の画像PublicIDを返す。
func (r *PostgresListingRepo) ImagePublicIDsByCreator(ctx context.Context, userID int64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT img->>'public_id'
		 FROM listings, jsonb_array_elements(images) AS img
		 WHERE created_by = $1`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list listing images: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id sql.NullString
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan image id: %w", err)
		}
		if id.Valid && id.String != "" {
			ids = append(ids, id.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate image ids: %w", err)
	}
	return ids, nil
}

// Create は物件を作成する。
func (r *PostgresListingRepo) Create(ctx context.Context, l *model.Listing) error {
	images, err := encodeImages(l.Images)
	if err != nil {
		return err
	}
	err = r.db.QueryRowContext(ctx,
		`INSERT INTO listings (title, slug, category, description, address, price, discount,
			bathrooms, bedrooms, furnished, parking, purpose, images, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 RETURNING id, version, created_at, updated_at`,
		l.Title, l.Slug, l.Category, l.Description, l.Address, l.Price, l.Discount,
		l.Bathrooms, l.Bedrooms, l.Furnished, l.Parking, l.Purpose, images, l.CreatedBy,
	).Scan(&l.ID, &l.Version, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return mapWriteError(err, "insert listing")
	}
	return nil
}

// Update は物件をバージョン一致時のみ更新する。
func (r *PostgresListingRepo) Update(ctx context.Context, l *model.Listing) error {
	images, err := encodeImages(l.Images)
	if err != nil {
		return err
	}
	err = r.db.QueryRowContext(ctx,
		`UPDATE listings
		 SET title = $3, slug = $4, category = $5, description = $6, address = $7, price = $8,
			discount = $9, bathrooms = $10, bedrooms = $11, furnished = $12, parking = $13,
			purpose = $14, images = $15, version = version + 1, updated_at = now()
		 WHERE id = $1 AND version = $2
		 RETURNING version, updated_at`,
		l.ID, l.Version, l.Title, l.Slug, l.Category, l.Description, l.Address, l.Price,
		l.Discount, l.Bathrooms, l.Bedrooms, l.Furnished, l.Parking, l.Purpose, images,
	).Scan(&l.Version, &l.UpdatedAt)
	if err == sql.ErrNoRows {
		return ErrVersionConflict
	}
	if err != nil {
		return mapWriteError(err, "update listing")
	}
	return nil
}

// DeleteByID は指定IDの物件を削除する。対象がない場合はErrNotFoundを返す。
func (r *PostgresListingRepo) DeleteByID(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM listings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete listing: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// compile-time interface check
var _ ListingRepository = (*PostgresListingRepo)(nil)
