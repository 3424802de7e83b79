package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/estatehub/internal/middleware"
	"github.com/hitoshi/estatehub/internal/model"
)

// multipartMemory はmultipartフォームをメモリに保持する上限。超過分は一時ファイルに退避される。
const multipartMemory = 8 << 20

// maxPerPage はreviewPerPageの上限。
const maxPerPage = 100

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// handleServiceError はサービス層から返されたエラーをHTTPレスポンスに変換する。
// APIError以外のエラーは詳細をログのみに記録し、500を返す。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteAPIError(w, apiErr)
		return
	}

	slog.Error("internal server error",
		slog.String("error", err.Error()),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
	)
	middleware.WriteInternalServerError(w)
}

// decodeJSON はリクエストボディをJSONとしてデコードする。
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return model.NewValidationError("request body must be valid JSON")
	}
	return nil
}

// pathID はURLパラメータを正の整数IDとして解釈する。
func pathID(r *http.Request, key string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, key), 10, 64)
	if err != nil || id <= 0 {
		return 0, model.NewValidationError(key + " must be a positive integer")
	}
	return id, nil
}

// parsePage はpageNumberとreviewPerPageのクエリパラメータを解釈する。
// 省略時はpageNumber=1、reviewPerPage=defaultPerPageとする。
func parsePage(r *http.Request, defaultPerPage int) (model.Page, error) {
	page := model.Page{PageNumber: 1, PerPage: defaultPerPage}
	q := r.URL.Query()

	if v := q.Get("pageNumber"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return model.Page{}, model.NewInvalidPaginationError()
		}
		page.PageNumber = n
	}
	if v := q.Get("reviewPerPage"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxPerPage {
			return model.Page{}, model.NewInvalidPaginationError()
		}
		page.PerPage = n
	}
	return page, nil
}

// parseMultipart はmultipartフォームを解析する。multipart以外のリクエストはエラーにする。
func parseMultipart(w http.ResponseWriter, r *http.Request, maxBody int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return model.NewInvalidImageError("request body is too large")
		}
		return model.NewValidationError("request must be multipart/form-data")
	}
	return nil
}

// formFiles は指定フィールドのアップロードファイルを全て読み込む。
// 各ファイルはmaxBytesを超えた時点で拒否する。
func formFiles(r *http.Request, field string, maxBytes int64) ([][]byte, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	headers := r.MultipartForm.File[field]
	files := make([][]byte, 0, len(headers))
	for _, fh := range headers {
		data, err := readFormFile(fh, maxBytes)
		if err != nil {
			return nil, err
		}
		files = append(files, data)
	}
	return files, nil
}

// formFile は指定フィールドの最初のファイルを返す。未指定の場合はnilを返す。
func formFile(r *http.Request, field string, maxBytes int64) ([]byte, error) {
	files, err := formFiles(r, field, maxBytes)
	if err != nil || len(files) == 0 {
		return nil, err
	}
	return files[0], nil
}

func readFormFile(fh *multipart.FileHeader, maxBytes int64) ([]byte, error) {
	if maxBytes > 0 && fh.Size > maxBytes {
		return nil, model.NewInvalidImageError("image exceeds the maximum size")
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
