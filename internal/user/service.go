// Package user はプロフィール管理、お気に入り、退会のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/estatehub/internal/model"
	"github.com/hitoshi/estatehub/internal/repository"
	"github.com/hitoshi/estatehub/internal/security"
	"github.com/hitoshi/estatehub/internal/storage"
	"github.com/hitoshi/estatehub/internal/validation"
)

// UndecryptablePhone は電話番号を復号できない場合に表示する値。
const UndecryptablePhone = "undecryptable"

// FieldCipher は電話番号の暗号化と復号を行う。
type FieldCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// TokenRevoker はユーザーの全トークンを無効化する。
type TokenRevoker interface {
	InvalidateAllForUser(ctx context.Context, userID int64) error
}

// ServiceConfig はユーザーサービスの設定。
type ServiceConfig struct {
	ImageLimits storage.ImageLimits
	PhoneRegion string
}

// Service はユーザー管理のサービス層。
type Service struct {
	userRepo     repository.UserRepository
	listingRepo  repository.ListingRepository
	favoriteRepo repository.FavoriteRepository
	cipher       FieldCipher
	images       storage.Store
	revoker      TokenRevoker
	config       ServiceConfig
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	listingRepo repository.ListingRepository,
	favoriteRepo repository.FavoriteRepository,
	cipher FieldCipher,
	images storage.Store,
	revoker TokenRevoker,
	config ServiceConfig,
) *Service {
	if config.PhoneRegion == "" {
		config.PhoneRegion = "US"
	}
	return &Service{
		userRepo:     userRepo,
		listingRepo:  listingRepo,
		favoriteRepo: favoriteRepo,
		cipher:       cipher,
		images:       images,
		revoker:      revoker,
		config:       config,
	}
}

// Profile は本人向けのプロフィール表示。
// Favoritesは明示的に要求された場合のみ設定される。
type Profile struct {
	User      *model.User
	Phone     string
	Favorites []*model.Listing
}

// GetCurrentUser は本人のプロフィールを返す。
// 電話番号を復号できない場合もエラーにせず、UndecryptablePhoneを設定する。
func (s *Service) GetCurrentUser(ctx context.Context, userID int64, includeFavorites bool) (*Profile, error) {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	profile := &Profile{User: user, Phone: s.decryptPhone(user)}
	if includeFavorites {
		favorites, err := s.favoriteRepo.ListByUserID(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("お気に入りの取得に失敗しました: %w", err)
		}
		profile.Favorites = favorites
	}
	return profile, nil
}

// UpdateProfileInput はプロフィール更新の入力。空のフィールドは変更しない。
type UpdateProfileInput struct {
	Username     string `json:"username" validate:"omitempty,min=8,max=150"`
	Phone        string `json:"phone" validate:"omitempty,min=8,max=150"`
	ProfileImage []byte `json:"-"`
}

// UpdateProfile はユーザー名・電話番号・プロフィール画像を更新する。
// 画像の差し替えはバージョン一致時のみ確定し、競合時はアップロード済みの新画像を削除する。
func (s *Service) UpdateProfile(ctx context.Context, userID int64, in UpdateProfileInput) (*Profile, error) {
	in.Username = strings.TrimSpace(in.Username)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if in.Username != "" && in.Username != user.Username {
		existing, err := s.userRepo.FindByUsername(ctx, in.Username)
		if err != nil {
			return nil, fmt.Errorf("ユーザー名の検索に失敗しました: %w", err)
		}
		if existing != nil && existing.ID != user.ID {
			return nil, model.NewUsernameTakenError(in.Username)
		}
		user.Username = in.Username
	}

	if in.Phone != "" {
		encrypted, err := s.cipher.Encrypt(security.NormalizePhone(in.Phone, s.config.PhoneRegion))
		if err != nil {
			return nil, fmt.Errorf("電話番号の暗号化に失敗しました: %w", err)
		}
		user.EncryptedPhone = encrypted
	}

	var oldImage, newImage string
	if len(in.ProfileImage) > 0 {
		ref, err := storage.Put(ctx, s.images, storage.FolderProfileImage, in.ProfileImage, s.config.ImageLimits)
		if err != nil {
			return nil, err
		}
		oldImage = user.ProfileImage.PublicID
		newImage = ref.PublicID
		user.ProfileImage = ref
	}

	if err := s.userRepo.UpdateProfile(ctx, user); err != nil {
		storage.Discard(ctx, s.images, newImage)
		var dup *repository.DuplicateError
		switch {
		case errors.Is(err, repository.ErrVersionConflict):
			return nil, model.NewConcurrentUpdateError()
		case errors.As(err, &dup) && dup.Constraint == repository.ConstraintUserUsername:
			return nil, model.NewUsernameTakenError(user.Username)
		default:
			return nil, fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
		}
	}

	if newImage != "" {
		storage.Discard(ctx, s.images, oldImage)
	}

	slog.Info("プロフィールを更新しました",
		slog.Int64("user_id", userID),
		slog.Int64("version", user.Version),
	)
	return &Profile{User: user, Phone: s.decryptPhone(user)}, nil
}

// DeleteProfile はユーザーを削除する。本人または管理者のみ実行できる。
// 削除順序: トークン無効化 → user（+ CASCADE: tokens, listings, favorites）→ 画像
func (s *Service) DeleteProfile(ctx context.Context, callerID int64, callerRole model.Role, targetID int64) error {
	if callerID != targetID && callerRole != model.RoleAdmin {
		return model.NewForbiddenError("You can only delete your own profile")
	}

	user, err := s.findUser(ctx, targetID)
	if err != nil {
		return err
	}

	slog.Info("退会処理を開始します",
		slog.Int64("user_id", targetID),
		slog.Int64("caller_id", callerID),
	)

	// 1. 物件画像の一覧を退避（物件はCASCADE削除される）
	listingImages, err := s.listingRepo.ImagePublicIDsByCreator(ctx, targetID)
	if err != nil {
		return fmt.Errorf("物件画像の取得に失敗しました: %w", err)
	}

	// 2. トークンを無効化
	if err := s.revoker.InvalidateAllForUser(ctx, targetID); err != nil {
		return fmt.Errorf("トークンの無効化に失敗しました: %w", err)
	}

	// 3. ユーザーを削除
	if err := s.userRepo.DeleteByID(ctx, targetID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewUserNotFoundError(targetID)
		}
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	// 4. 画像を削除
	storage.Discard(ctx, s.images, user.ProfileImage.PublicID)
	storage.Discard(ctx, s.images, listingImages...)

	slog.Info("退会処理が完了しました",
		slog.Int64("user_id", targetID),
	)
	return nil
}

// ListListings は本人が作成した物件一覧を返す。
func (s *Service) ListListings(ctx context.Context, userID int64, page model.Page) ([]*model.Listing, error) {
	listings, err := s.listingRepo.ListByCreator(ctx, userID, page)
	if err != nil {
		return nil, fmt.Errorf("物件一覧の取得に失敗しました: %w", err)
	}
	return listings, nil
}

// Favorites はお気に入り物件の一覧を返す。
func (s *Service) Favorites(ctx context.Context, userID int64) ([]*model.Listing, error) {
	listings, err := s.favoriteRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("お気に入りの取得に失敗しました: %w", err)
	}
	return listings, nil
}

// AddFavorite は物件をお気に入りに追加する。登録済みの場合も成功とする。
func (s *Service) AddFavorite(ctx context.Context, userID, listingID int64) error {
	listing, err := s.listingRepo.FindByID(ctx, listingID)
	if err != nil {
		return fmt.Errorf("物件の取得に失敗しました: %w", err)
	}
	if listing == nil {
		return model.NewListingNotFoundError(listingID)
	}
	if err := s.favoriteRepo.Add(ctx, userID, listingID); err != nil {
		return fmt.Errorf("お気に入りの追加に失敗しました: %w", err)
	}
	return nil
}

// RemoveFavorite は物件をお気に入りから外す。未登録の場合も成功とする。
func (s *Service) RemoveFavorite(ctx context.Context, userID, listingID int64) error {
	if err := s.favoriteRepo.Remove(ctx, userID, listingID); err != nil {
		return fmt.Errorf("お気に入りの削除に失敗しました: %w", err)
	}
	return nil
}

func (s *Service) findUser(ctx context.Context, userID int64) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError(userID)
	}
	return user, nil
}

func (s *Service) decryptPhone(user *model.User) string {
	if user.EncryptedPhone == "" {
		return ""
	}
	phone, err := s.cipher.Decrypt(user.EncryptedPhone)
	if err != nil {
		slog.Warn("電話番号を復号できません",
			slog.Int64("user_id", user.ID),
			slog.Bool("undecryptable", errors.Is(err, security.ErrUndecryptable)),
		)
		return UndecryptablePhone
	}
	return phone
}
