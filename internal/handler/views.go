package handler

import (
	"time"

	"github.com/hitoshi/estatehub/internal/listing"
	"github.com/hitoshi/estatehub/internal/model"
)

// excerptLength は一覧表示用の説明文抜粋の最大文字数。
const excerptLength = 80

// userResponse はユーザー情報のAPIレスポンス。
// パスワードハッシュ・電話番号・OTPは含めない。
type userResponse struct {
	ID             int64          `json:"id"`
	Username       string         `json:"username"`
	Email          string         `json:"email"`
	ProfileImage   model.ImageRef `json:"profileImage"`
	EmailConfirmed bool           `json:"emailConfirmed"`
	Role           model.Role     `json:"role"`
	Status         string         `json:"status"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// profileResponse は本人向けのプロフィール表示。復号済みの電話番号を含む。
type profileResponse struct {
	userResponse
	Phone     string            `json:"phone"`
	Favorites []listingResponse `json:"favorites,omitempty"`
}

// listingResponse は物件情報のAPIレスポンス。
type listingResponse struct {
	ID          int64            `json:"id"`
	Title       string           `json:"title"`
	Slug        string           `json:"slug"`
	Category    string           `json:"category"`
	Description string           `json:"description"`
	Excerpt     string           `json:"excerpt"`
	Address     string           `json:"address"`
	Price       float64          `json:"price"`
	Discount    int              `json:"discount"`
	Bathrooms   int              `json:"bathrooms"`
	Bedrooms    int              `json:"bedrooms"`
	Furnished   bool             `json:"furnished"`
	Parking     bool             `json:"parking"`
	Purpose     string           `json:"purpose"`
	Images      []model.ImageRef `json:"images"`
	CreatedBy   int64            `json:"createdBy"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// categoryResponse はカテゴリのAPIレスポンス。
type categoryResponse struct {
	ID        int64          `json:"id"`
	Name      string         `json:"name"`
	Slug      string         `json:"slug"`
	Image     model.ImageRef `json:"image"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:             u.ID,
		Username:       u.Username,
		Email:          u.Email,
		ProfileImage:   u.ProfileImage,
		EmailConfirmed: u.EmailConfirmed,
		Role:           u.Role,
		Status:         string(u.Status),
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
}

func toListingResponse(l *model.Listing) listingResponse {
	images := l.Images
	if images == nil {
		images = []model.ImageRef{}
	}
	return listingResponse{
		ID:          l.ID,
		Title:       l.Title,
		Slug:        l.Slug,
		Category:    string(l.Category),
		Description: l.Description,
		Excerpt:     listing.Excerpt(l.Description, excerptLength),
		Address:     l.Address,
		Price:       l.Price,
		Discount:    l.Discount,
		Bathrooms:   l.Bathrooms,
		Bedrooms:    l.Bedrooms,
		Furnished:   l.Furnished,
		Parking:     l.Parking,
		Purpose:     string(l.Purpose),
		Images:      images,
		CreatedBy:   l.CreatedBy,
		CreatedAt:   l.CreatedAt,
		UpdatedAt:   l.UpdatedAt,
	}
}

func toListingResponses(listings []*model.Listing) []listingResponse {
	out := make([]listingResponse, 0, len(listings))
	for _, l := range listings {
		out = append(out, toListingResponse(l))
	}
	return out
}

func toCategoryResponse(c *model.Category) categoryResponse {
	return categoryResponse{
		ID:        c.ID,
		Name:      c.Name,
		Slug:      c.Slug,
		Image:     c.Image,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}
