// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"

	"github.com/hitoshi/estatehub/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
// 検索系は論理削除済みのユーザーを返さない。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindByUsername はユーザー名でユーザーを検索する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// Create はユーザーを作成し、採番したIDとバージョンを設定する。
	// メールアドレスまたはユーザー名が重複する場合は*DuplicateErrorを返す。
	Create(ctx context.Context, user *model.User) error

	// UpdateStatus はセッション状態を更新する。
	UpdateStatus(ctx context.Context, id int64, status model.SessionStatus) error

	// UpdatePassword はパスワードハッシュを更新する。
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error

	// UpdateVerification は未確認ユーザーのメール確認状態とOTPを更新する。
	// 確認済み（または存在しない）場合はErrAlreadyConfirmedを返す。
	UpdateVerification(ctx context.Context, user *model.User) error

	// UpdateProfile はユーザー名・電話番号・プロフィール画像をバージョン一致時のみ更新する。
	// 成功時はuser.Versionを新しい値に更新する。不一致の場合はErrVersionConflictを返す。
	UpdateProfile(ctx context.Context, user *model.User) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するtokens、listings、favoritesはCASCADE削除される。
	DeleteByID(ctx context.Context, id int64) error
}

// TokenRepository はトークン台帳の永続化インターフェース。
type TokenRepository interface {
	// Create はレコードを追加し、採番したIDを設定する。
	Create(ctx context.Context, record *model.TokenRecord) error

	// FindByDigest はダイジェストでレコードを取得する。見つからない場合はnilを返す。
	FindByDigest(ctx context.Context, digest string) (*model.TokenRecord, error)

	// InvalidateByDigest はレコードを無効化する。対象がなくてもエラーにしない。
	InvalidateByDigest(ctx context.Context, digest string) error

	// InvalidateByUserID はユーザーの有効なレコードを全て無効化し、対象のダイジェストを返す。
	InvalidateByUserID(ctx context.Context, userID int64) ([]string, error)
}

// ListingRepository は物件データの永続化インターフェース。
type ListingRepository interface {
	// FindByID は指定IDの物件を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Listing, error)

	// FindByTitle はタイトルで物件を検索する。見つからない場合はnilを返す。
	FindByTitle(ctx context.Context, title string) (*model.Listing, error)

	// List は物件一覧をcreated_at降順で返す。
	List(ctx context.Context, page model.Page) ([]*model.Listing, error)

	// ListByCreator は指定ユーザーが作成した物件一覧をcreated_at降順で返す。
	ListByCreator(ctx context.Context, userID int64, page model.Page) ([]*model.Listing, error)

	// ImagePublicIDsByCreator は指定ユーザーの全物件の画像PublicIDを返す。
	ImagePublicIDsByCreator(ctx context.Context, userID int64) ([]string, error)

	// Create は物件を作成する。タイトルが重複する場合は*DuplicateErrorを返す。
	Create(ctx context.Context, listing *model.Listing) error

	// Update は物件をバージョン一致時のみ更新する。不一致の場合はErrVersionConflictを返す。
	Update(ctx context.Context, listing *model.Listing) error

	// DeleteByID は指定IDの物件を削除する。
	DeleteByID(ctx context.Context, id int64) error
}

// CategoryRepository はカテゴリデータの永続化インターフェース。
type CategoryRepository interface {
	// FindByID は指定IDのカテゴリを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Category, error)

	// FindByName は名前でカテゴリを検索する。見つからない場合はnilを返す。
	FindByName(ctx context.Context, name string) (*model.Category, error)

	// List はカテゴリ一覧をcreated_at降順で返す。
	List(ctx context.Context, page model.Page) ([]*model.Category, error)

	// Create はカテゴリを作成する。名前が重複する場合は*DuplicateErrorを返す。
	Create(ctx context.Context, category *model.Category) error

	// Update はカテゴリをバージョン一致時のみ更新する。不一致の場合はErrVersionConflictを返す。
	Update(ctx context.Context, category *model.Category) error

	// DeleteByID は指定IDのカテゴリを削除する。
	DeleteByID(ctx context.Context, id int64) error
}

// FavoriteRepository はお気に入りの永続化インターフェース。
type FavoriteRepository interface {
	// Add はお気に入りを追加する。登録済みの場合は何もしない。
	Add(ctx context.Context, userID, listingID int64) error

	// Remove はお気に入りを削除する。未登録の場合は何もしない。
	Remove(ctx context.Context, userID, listingID int64) error

	// ListByUserID はユーザーのお気に入り物件を登録日時の降順で返す。
	ListByUserID(ctx context.Context, userID int64) ([]*model.Listing, error)
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
