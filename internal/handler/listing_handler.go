package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/hitoshi/estatehub/internal/listing"
	"github.com/hitoshi/estatehub/internal/middleware"
	"github.com/hitoshi/estatehub/internal/model"
)

// ListingServiceInterface は物件ハンドラーが必要とするサービスインターフェース。
type ListingServiceInterface interface {
	List(ctx context.Context, page model.Page) ([]*model.Listing, error)
	Get(ctx context.Context, id int64) (*model.Listing, error)
	Create(ctx context.Context, creatorID int64, in listing.Input) (*model.Listing, error)
	Update(ctx context.Context, callerID int64, callerRole model.Role, id int64, in listing.Input) (*model.Listing, error)
	Delete(ctx context.Context, callerID int64, callerRole model.Role, id int64) error
}

// listingImagesField は物件画像のmultipartフィールド名。
const listingImagesField = "listing-images"

// ListingHandler は物件のHTTPハンドラー。
type ListingHandler struct {
	service         ListingServiceInterface
	upload          UploadConfig
	defaultPageSize int
}

// NewListingHandler はListingHandlerを生成する。
func NewListingHandler(service ListingServiceInterface, upload UploadConfig, defaultPageSize int) *ListingHandler {
	return &ListingHandler{service: service, upload: upload, defaultPageSize: defaultPageSize}
}

// List は物件一覧を返す。
// GET /api/listing?pageNumber=1&reviewPerPage=10
func (h *ListingHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r, h.defaultPageSize)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	listings, err := h.service.List(r.Context(), page)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toListingResponses(listings))
}

// Get は物件詳細を返す。
// GET /api/listing/{id}
func (h *ListingHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	l, err := h.service.Get(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toListingResponse(l))
}

// Create は物件を登録する。
// POST /api/listing (multipart: listing-images)
func (h *ListingHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())

	in, err := h.readInput(w, r)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	l, err := h.service.Create(r.Context(), userID, in)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toListingResponse(l))
}

// Update は物件を更新する。画像を指定しない場合は既存の画像を残す。
// PUT /api/listing/{id}
func (h *ListingHandler) Update(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	id, err := pathID(r, "id")
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	in, err := h.readInput(w, r)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	l, err := h.service.Update(r.Context(), claims.UserID, claims.Role, id, in)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toListingResponse(l))
}

// Delete は物件を削除する。
// DELETE /api/listing/{id}
func (h *ListingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	id, err := pathID(r, "id")
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	if err := h.service.Delete(r.Context(), claims.UserID, claims.Role, id); err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// readInput はmultipartフォームから物件の入力を組み立てる。
func (h *ListingHandler) readInput(w http.ResponseWriter, r *http.Request) (listing.Input, error) {
	if err := parseMultipart(w, r, h.upload.maxBody(model.MaxListingImages)); err != nil {
		return listing.Input{}, err
	}

	images, err := formFiles(r, listingImagesField, h.upload.MaxImageBytes)
	if err != nil {
		return listing.Input{}, err
	}

	f := formReader{r: r}
	in := listing.Input{
		Title:       r.FormValue("title"),
		Category:    r.FormValue("category"),
		Description: r.FormValue("description"),
		Address:     r.FormValue("address"),
		Price:       f.float("price"),
		Discount:    f.int("discount"),
		Bathrooms:   f.int("bathrooms"),
		Bedrooms:    f.int("bedrooms"),
		Furnished:   f.bool("furnished"),
		Parking:     f.bool("parking"),
		Purpose:     r.FormValue("purpose"),
		Images:      images,
	}
	if f.err != nil {
		return listing.Input{}, f.err
	}
	return in, nil
}

// formReader はフォーム値を型変換し、最初の変換エラーを保持する。
type formReader struct {
	r   *http.Request
	err error
}

func (f *formReader) value(key string) string {
	if f.err != nil {
		return ""
	}
	return f.r.FormValue(key)
}

func (f *formReader) fail(key string) {
	f.err = model.NewValidationError(key + " is invalid")
}

func (f *formReader) float(key string) float64 {
	v := f.value(key)
	if v == "" {
		return 0
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		f.fail(key)
	}
	return n
}

func (f *formReader) int(key string) int {
	v := f.value(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		f.fail(key)
	}
	return n
}

func (f *formReader) bool(key string) bool {
	v := f.value(key)
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		f.fail(key)
	}
	return b
}
