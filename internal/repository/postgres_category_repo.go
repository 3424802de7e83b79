package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/estatehub/internal/model"
)

const categoryColumns = `id, name, slug, image_url, image_public_id, version, created_at, updated_at`

// PostgresCategoryRepo はPostgreSQLを使用したカテゴリリポジトリ。
type PostgresCategoryRepo struct {
	db *sql.DB
}

// NewPostgresCategoryRepo はPostgresCategoryRepoを生成する。
func NewPostgresCategoryRepo(db *sql.DB) *PostgresCategoryRepo {
	return &PostgresCategoryRepo{db: db}
}

func scanCategory(row rowScanner) (*model.Category, error) {
	c := &model.Category{}
	err := row.Scan(&c.ID, &c.Name, &c.Slug, &c.Image.URL, &c.Image.PublicID, &c.Version, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *PostgresCategoryRepo) findOne(ctx context.Context, where string, arg any) (*model.Category, error) {
	c, err := scanCategory(r.db.QueryRowContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE `+where,
		arg,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find category: %w", err)
	}
	return c, nil
}

// FindByID は指定IDのカテゴリを取得する。見つからない場合はnilを返す。
func (r *PostgresCategoryRepo) FindByID(ctx context.Context, id int64) (*model.Category, error) {
	return r.findOne(ctx, "id = $1", id)
}

// FindByName は名前でカテゴリを検索する。見つからない場合はnilを返す。
func (r *PostgresCategoryRepo) FindByName(ctx context.Context, name string) (*model.Category, error) {
	return r.findOne(ctx, "name = $1", name)
}

// List はカテゴリ一覧をcreated_at降順で返す。
func (r *PostgresCategoryRepo) List(ctx context.Context, page model.Page) ([]*model.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+categoryColumns+` FROM categories
		 ORDER BY created_at DESC, id DESC
		 LIMIT $1 OFFSET $2`,
		page.PerPage, page.Offset(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	categories := make([]*model.Category, 0)
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate categories: %w", err)
	}
	return categories, nil
}

// Create はカテゴリを作成する。
func (r *PostgresCategoryRepo) Create(ctx context.Context, c *model.Category) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO categories (name, slug, image_url, image_public_id)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, version, created_at, updated_at`,
		c.Name, c.Slug, c.Image.URL, c.Image.PublicID,
	).Scan(&c.ID, &c.Version, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return mapWriteError(err, "insert category")
	}
	return nil
}

// Update はカテゴリをバージョン一致時のみ更新する。
func (r *PostgresCategoryRepo) Update(ctx context.Context, c *model.Category) error {
	err := r.db.QueryRowContext(ctx,
		`UPDATE categories
		 SET name = $3, slug = $4, image_url = $5, image_public_id = $6,
			version = version + 1, updated_at = now()
		 WHERE id = $1 AND version = $2
		 RETURNING version, updated_at`,
		c.ID, c.Version, c.Name, c.Slug, c.Image.URL, c.Image.PublicID,
	).Scan(&c.Version, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return ErrVersionConflict
	}
	if err != nil {
		return mapWriteError(err, "update category")
	}
	return nil
}

// DeleteByID は指定IDのカテゴリを削除する。対象がない場合はErrNotFoundを返す。
func (r *PostgresCategoryRepo) DeleteByID(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
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
var _ CategoryRepository = (*PostgresCategoryRepo)(nil)
