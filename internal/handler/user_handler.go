package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/hitoshi/estatehub/internal/middleware"
	"github.com/hitoshi/estatehub/internal/model"
	"github.com/hitoshi/estatehub/internal/user"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	GetCurrentUser(ctx context.Context, userID int64, includeFavorites bool) (*user.Profile, error)
	UpdateProfile(ctx context.Context, userID int64, in user.UpdateProfileInput) (*user.Profile, error)
	DeleteProfile(ctx context.Context, callerID int64, callerRole model.Role, targetID int64) error
	ListListings(ctx context.Context, userID int64, page model.Page) ([]*model.Listing, error)
	Favorites(ctx context.Context, userID int64) ([]*model.Listing, error)
	AddFavorite(ctx context.Context, userID, listingID int64) error
	RemoveFavorite(ctx context.Context, userID, listingID int64) error
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service         UserServiceInterface
	upload          UploadConfig
	defaultPageSize int
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface, upload UploadConfig, defaultPageSize int) *UserHandler {
	return &UserHandler{
		service:         service,
		upload:          upload,
		defaultPageSize: defaultPageSize,
	}
}

// CurrentUser は本人のプロフィールを返す。
// GET /api/users/current-user?include=favorites
func (h *UserHandler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	include := includesRelation(r.URL.Query().Get("include"), "favorites")

	profile, err := h.service.GetCurrentUser(r.Context(), userID, include)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toProfileResponse(profile))
}

// UpdateProfile はプロフィールを更新する。
// PUT /api/users/update-profile (multipart: username, phone, profileImage)
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())

	if err := parseMultipart(w, r, h.upload.maxBody(1)); err != nil {
		handleServiceError(w, r, err)
		return
	}
	image, err := formFile(r, "profileImage", h.upload.MaxImageBytes)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	profile, err := h.service.UpdateProfile(r.Context(), userID, user.UpdateProfileInput{
		Username:     r.FormValue("username"),
		Phone:        r.FormValue("phone"),
		ProfileImage: image,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toProfileResponse(profile))
}

// DeleteProfile はユーザーを削除する。本人または管理者のみ実行できる。
// DELETE /api/users/deleteProfile/{id}
func (h *UserHandler) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	targetID, err := pathID(r, "id")
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	if err := h.service.DeleteProfile(r.Context(), claims.UserID, claims.Role, targetID); err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Listings は本人が作成した物件一覧を返す。
// GET /api/users/listings
func (h *UserHandler) Listings(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	page, err := parsePage(r, h.defaultPageSize)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	listings, err := h.service.ListListings(r.Context(), userID, page)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toListingResponses(listings))
}

// Favorites はお気に入り物件の一覧を返す。
// GET /api/users/favorites
func (h *UserHandler) Favorites(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())

	listings, err := h.service.Favorites(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toListingResponses(listings))
}

// AddFavorite は物件をお気に入りに追加する。
// POST /api/users/favorites/{listingId}
func (h *UserHandler) AddFavorite(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	listingID, err := pathID(r, "listingId")
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	if err := h.service.AddFavorite(r.Context(), userID, listingID); err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RemoveFavorite は物件をお気に入りから外す。
// DELETE /api/users/favorites/{listingId}
func (h *UserHandler) RemoveFavorite(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	listingID, err := pathID(r, "listingId")
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	if err := h.service.RemoveFavorite(r.Context(), userID, listingID); err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func toProfileResponse(p *user.Profile) profileResponse {
	resp := profileResponse{
		userResponse: toUserResponse(p.User),
		Phone:        p.Phone,
	}
	if p.Favorites != nil {
		resp.Favorites = toListingResponses(p.Favorites)
	}
	return resp
}

// includesRelation はカンマ区切りのinclude指定に関連名が含まれるかを返す。
func includesRelation(include, relation string) bool {
	for _, v := range strings.Split(include, ",") {
		if strings.EqualFold(strings.TrimSpace(v), relation) {
			return true
		}
	}
	return false
}
