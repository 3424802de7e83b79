package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/estatehub/internal/category"
	"github.com/hitoshi/estatehub/internal/model"
)

// CategoryServiceInterface はカテゴリハンドラーが必要とするサービスインターフェース。
type CategoryServiceInterface interface {
	List(ctx context.Context, page model.Page) ([]*model.Category, error)
	Get(ctx context.Context, id int64) (*model.Category, error)
	Create(ctx context.Context, in category.Input) (*model.Category, error)
	Update(ctx context.Context, id int64, in category.Input) (*model.Category, error)
	Delete(ctx context.Context, id int64) error
}

// categoryImageField はカテゴリ画像のmultipartフィールド名。
const categoryImageField = "categories-image"

// CategoryHandler はカテゴリのHTTPハンドラー。
type CategoryHandler struct {
	service         CategoryServiceInterface
	upload          UploadConfig
	defaultPageSize int
}

// NewCategoryHandler はCategoryHandlerを生成する。
func NewCategoryHandler(service CategoryServiceInterface, upload UploadConfig, defaultPageSize int) *CategoryHandler {
	return &CategoryHandler{service: service, upload: upload, defaultPageSize: defaultPageSize}
}

// List はカテゴリ一覧を返す。
// GET /api/category
func (h *CategoryHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r, h.defaultPageSize)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	categories, err := h.service.List(r.Context(), page)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	out := make([]categoryResponse, 0, len(categories))
	for _, c := range categories {
		out = append(out, toCategoryResponse(c))
	}
	writeJSON(w, http.StatusOK, out)
}

// Get はカテゴリを返す。
// GET /api/category/{id}
func (h *CategoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	c, err := h.service.Get(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toCategoryResponse(c))
}

// Create はカテゴリを作成する。
// POST /api/category (multipart: name, categories-image)
func (h *CategoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	in, err := h.readInput(w, r)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	c, err := h.service.Create(r.Context(), in)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toCategoryResponse(c))
}

// Update はカテゴリを更新する。
// PUT /api/category/{id}
func (h *CategoryHandler) Update(w http.ResponseWriter, r *http.Request) {
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

	c, err := h.service.Update(r.Context(), id, in)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toCategoryResponse(c))
}

// Delete はカテゴリを削除する。
// DELETE /api/category/{id}
func (h *CategoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *CategoryHandler) readInput(w http.ResponseWriter, r *http.Request) (category.Input, error) {
	if err := parseMultipart(w, r, h.upload.maxBody(1)); err != nil {
		return category.Input{}, err
	}
	image, err := formFile(r, categoryImageField, h.upload.MaxImageBytes)
	if err != nil {
		return category.Input{}, err
	}
	return category.Input{Name: r.FormValue("name"), Image: image}, nil
}
