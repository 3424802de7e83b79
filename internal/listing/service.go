// Package listing は物件情報の登録・更新・削除のドメインロジックを提供する。
package listing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/estatehub/internal/model"
	"github.com/hitoshi/estatehub/internal/repository"
	"github.com/hitoshi/estatehub/internal/storage"
	"github.com/hitoshi/estatehub/internal/validation"
)

// Sanitizer は説明文のHTMLをサニタイズする。
type Sanitizer interface {
	Sanitize(rawHTML string) string
}

// Input は物件の作成・更新の入力。
// 更新時にImagesが空の場合、既存の画像をそのまま残す。
type Input struct {
	Title       string   `json:"title" validate:"required,max=150"`
	Category    string   `json:"category" validate:"required,oneof=Apartment House Office Land Commercial"`
	Description string   `json:"description" validate:"required,max=250"`
	Address     string   `json:"address" validate:"required,max=250"`
	Price       float64  `json:"price" validate:"min=0"`
	Discount    int      `json:"discount" validate:"min=0,max=100"`
	Bathrooms   int      `json:"bathrooms" validate:"min=0"`
	Bedrooms    int      `json:"bedrooms" validate:"min=0"`
	Furnished   bool     `json:"furnished"`
	Parking     bool     `json:"parking"`
	Purpose     string   `json:"purpose" validate:"required,oneof='For Sale' 'For Rent'"`
	Images      [][]byte `json:"-"`
}

// Service は物件のサービス層。
type Service struct {
	repo      repository.ListingRepository
	images    storage.Store
	sanitizer Sanitizer
	limits    storage.ImageLimits
}

// NewService はServiceを生成する。
func NewService(repo repository.ListingRepository, images storage.Store, sanitizer Sanitizer, limits storage.ImageLimits) *Service {
	return &Service{repo: repo, images: images, sanitizer: sanitizer, limits: limits}
}

// List は物件一覧を新しい順に返す。
func (s *Service) List(ctx context.Context, page model.Page) ([]*model.Listing, error) {
	listings, err := s.repo.List(ctx, page)
	if err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}
	return listings, nil
}

// Get は物件を返す。
func (s *Service) Get(ctx context.Context, id int64) (*model.Listing, error) {
	l, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find listing: %w", err)
	}
	if l == nil {
		return nil, model.NewListingNotFoundError(id)
	}
	return l, nil
}

// Create は物件を登録する。画像は全てアップロードできた場合のみ登録する。
func (s *Service) Create(ctx context.Context, creatorID int64, in Input) (*model.Listing, error) {
	if err := s.normalize(&in); err != nil {
		return nil, err
	}

	existing, err := s.repo.FindByTitle(ctx, in.Title)
	if err != nil {
		return nil, fmt.Errorf("failed to find listing by title: %w", err)
	}
	if existing != nil {
		return nil, model.NewListingTitleTakenError(in.Title)
	}

	refs, err := s.uploadAll(ctx, in.Images)
	if err != nil {
		return nil, err
	}

	l := &model.Listing{CreatedBy: creatorID}
	apply(l, in)
	l.Images = refs

	if err := s.repo.Create(ctx, l); err != nil {
		storage.Discard(ctx, s.images, publicIDs(refs)...)
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewListingTitleTakenError(in.Title)
		}
		return nil, fmt.Errorf("failed to create listing: %w", err)
	}

	slog.Info("listing created",
		slog.Int64("listing_id", l.ID),
		slog.Int64("user_id", creatorID),
	)
	return l, nil
}

// Update は物件を更新する。作成者または管理者のみ実行できる。
// 画像が指定された場合は画像一式をバージョン一致時のみ差し替える。
func (s *Service) Update(ctx context.Context, callerID int64, callerRole model.Role, id int64, in Input) (*model.Listing, error) {
	if err := s.normalize(&in); err != nil {
		return nil, err
	}

	l, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(l, callerID, callerRole); err != nil {
		return nil, err
	}

	if in.Title != l.Title {
		existing, err := s.repo.FindByTitle(ctx, in.Title)
		if err != nil {
			return nil, fmt.Errorf("failed to find listing by title: %w", err)
		}
		if existing != nil && existing.ID != l.ID {
			return nil, model.NewListingTitleTakenError(in.Title)
		}
	}

	var oldImages, newImages []string
	if len(in.Images) > 0 {
		refs, err := s.uploadAll(ctx, in.Images)
		if err != nil {
			return nil, err
		}
		oldImages = l.ImagePublicIDs()
		newImages = publicIDs(refs)
		l.Images = refs
	}
	apply(l, in)

	if err := s.repo.Update(ctx, l); err != nil {
		storage.Discard(ctx, s.images, newImages...)
		switch {
		case errors.Is(err, repository.ErrVersionConflict):
			return nil, model.NewConcurrentUpdateError()
		case errors.Is(err, repository.ErrDuplicate):
			return nil, model.NewListingTitleTakenError(in.Title)
		default:
			return nil, fmt.Errorf("failed to update listing: %w", err)
		}
	}
	storage.Discard(ctx, s.images, oldImages...)

	slog.Info("listing updated",
		slog.Int64("listing_id", l.ID),
		slog.Int64("version", l.Version),
	)
	return l, nil
}

// Delete は物件と画像を削除する。作成者または管理者のみ実行できる。
func (s *Service) Delete(ctx context.Context, callerID int64, callerRole model.Role, id int64) error {
	l, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := authorize(l, callerID, callerRole); err != nil {
		return err
	}

	if err := s.repo.DeleteByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewListingNotFoundError(id)
		}
		return fmt.Errorf("failed to delete listing: %w", err)
	}
	storage.Discard(ctx, s.images, l.ImagePublicIDs()...)

	slog.Info("listing deleted",
		slog.Int64("listing_id", id),
		slog.Int64("user_id", callerID),
	)
	return nil
}

// normalize は入力を検証し、タイトルと説明文を正規化する。
func (s *Service) normalize(in *Input) error {
	in.Title = strings.ToLower(strings.TrimSpace(in.Title))
	in.Address = strings.TrimSpace(in.Address)
	in.Description = strings.ToLower(s.sanitizer.Sanitize(in.Description))
	if err := validation.Struct(in); err != nil {
		return err
	}
	if len(in.Images) > model.MaxListingImages {
		return model.NewTooManyImagesError(model.MaxListingImages)
	}
	return nil
}

// uploadAll は画像を順にアップロードする。途中で失敗した場合はアップロード済みの画像を削除する。
func (s *Service) uploadAll(ctx context.Context, images [][]byte) ([]model.ImageRef, error) {
	refs := make([]model.ImageRef, 0, len(images))
	for _, data := range images {
		ref, err := storage.Put(ctx, s.images, storage.FolderListing, data, s.limits)
		if err != nil {
			storage.Discard(ctx, s.images, publicIDs(refs)...)
			if model.KindOf(err) != model.KindInternal {
				return nil, err
			}
			return nil, fmt.Errorf("failed to upload listing image: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func authorize(l *model.Listing, callerID int64, callerRole model.Role) error {
	if l.CreatedBy != callerID && callerRole != model.RoleAdmin {
		return model.NewForbiddenError("You can only modify your own listings")
	}
	return nil
}

func apply(l *model.Listing, in Input) {
	l.Title = in.Title
	l.Slug = Slugify(in.Title)
	l.Category = model.PropertyType(in.Category)
	l.Description = in.Description
	l.Address = in.Address
	l.Price = in.Price
	l.Discount = in.Discount
	l.Bathrooms = in.Bathrooms
	l.Bedrooms = in.Bedrooms
	l.Furnished = in.Furnished
	l.Parking = in.Parking
	l.Purpose = model.Purpose(in.Purpose)
}

func publicIDs(refs []model.ImageRef) []string {
	ids := make([]string, 0, len(refs))
	for _, r := range refs {
		ids = append(ids, r.PublicID)
	}
	return ids
}
