// Package category は物件カテゴリのドメインロジックを提供する。
package category

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/estatehub/internal/listing"
	"github.com/hitoshi/estatehub/internal/model"
	"github.com/hitoshi/estatehub/internal/repository"
	"github.com/hitoshi/estatehub/internal/storage"
	"github.com/hitoshi/estatehub/internal/validation"
)

// Input はカテゴリの作成・更新の入力。
type Input struct {
	Name  string `json:"name" validate:"required,max=150"`
	Image []byte `json:"-"`
}

// Service はカテゴリのサービス層。
type Service struct {
	repo   repository.CategoryRepository
	images storage.Store
	limits storage.ImageLimits
}

// NewService はServiceを生成する。
func NewService(repo repository.CategoryRepository, images storage.Store, limits storage.ImageLimits) *Service {
	return &Service{repo: repo, images: images, limits: limits}
}

// List はカテゴリ一覧を新しい順に返す。
func (s *Service) List(ctx context.Context, page model.Page) ([]*model.Category, error) {
	categories, err := s.repo.List(ctx, page)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return categories, nil
}

// Get はカテゴリを返す。
func (s *Service) Get(ctx context.Context, id int64) (*model.Category, error) {
	c, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find category: %w", err)
	}
	if c == nil {
		return nil, model.NewCategoryNotFoundError(id)
	}
	return c, nil
}

// Create はカテゴリを作成する。画像は必須。
func (s *Service) Create(ctx context.Context, in Input) (*model.Category, error) {
	if err := normalize(&in); err != nil {
		return nil, err
	}
	if len(in.Image) == 0 {
		return nil, model.NewImageRequiredError()
	}
	if err := s.ensureNameAvailable(ctx, in.Name, 0); err != nil {
		return nil, err
	}

	ref, err := storage.Put(ctx, s.images, storage.FolderCategory, in.Image, s.limits)
	if err != nil {
		return nil, err
	}

	c := &model.Category{Name: in.Name, Slug: listing.Slugify(in.Name), Image: ref}
	if err := s.repo.Create(ctx, c); err != nil {
		storage.Discard(ctx, s.images, ref.PublicID)
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewCategoryNameTakenError(in.Name)
		}
		return nil, fmt.Errorf("failed to create category: %w", err)
	}

	slog.Info("category created", slog.Int64("category_id", c.ID))
	return c, nil
}

// Update はカテゴリ名と画像を更新する。画像の差し替えはバージョン一致時のみ確定する。
func (s *Service) Update(ctx context.Context, id int64, in Input) (*model.Category, error) {
	if err := normalize(&in); err != nil {
		return nil, err
	}

	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Name != c.Name {
		if err := s.ensureNameAvailable(ctx, in.Name, c.ID); err != nil {
			return nil, err
		}
	}

	var oldImage, newImage string
	if len(in.Image) > 0 {
		ref, err := storage.Put(ctx, s.images, storage.FolderCategory, in.Image, s.limits)
		if err != nil {
			return nil, err
		}
		oldImage, newImage = c.Image.PublicID, ref.PublicID
		c.Image = ref
	}
	c.Name = in.Name
	c.Slug = listing.Slugify(in.Name)

	if err := s.repo.Update(ctx, c); err != nil {
		storage.Discard(ctx, s.images, newImage)
		switch {
		case errors.Is(err, repository.ErrVersionConflict):
			return nil, model.NewConcurrentUpdateError()
		case errors.Is(err, repository.ErrDuplicate):
			return nil, model.NewCategoryNameTakenError(in.Name)
		default:
			return nil, fmt.Errorf("failed to update category: %w", err)
		}
	}
	if newImage != "" {
		storage.Discard(ctx, s.images, oldImage)
	}

	slog.Info("category updated",
		slog.Int64("category_id", c.ID),
		slog.Int64("version", c.Version),
	)
	return c, nil
}

// Delete はカテゴリと画像を削除する。
func (s *Service) Delete(ctx context.Context, id int64) error {
	c, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewCategoryNotFoundError(id)
		}
		return fmt.Errorf("failed to delete category: %w", err)
	}
	storage.Discard(ctx, s.images, c.Image.PublicID)

	slog.Info("category deleted", slog.Int64("category_id", id))
	return nil
}

func (s *Service) ensureNameAvailable(ctx context.Context, name string, selfID int64) error {
	existing, err := s.repo.FindByName(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to find category by name: %w", err)
	}
	if existing != nil && existing.ID != selfID {
		return model.NewCategoryNameTakenError(name)
	}
	return nil
}

func normalize(in *Input) error {
	in.Name = strings.ToLower(strings.TrimSpace(in.Name))
	return validation.Struct(in)
}
