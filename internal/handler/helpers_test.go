package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/estatehub/internal/middleware"
	"github.com/hitoshi/estatehub/internal/model"
	"github.com/hitoshi/estatehub/internal/token"
)

var testUpload = UploadConfig{MaxImageBytes: 1 << 20}

// withClaims はテスト用にリクエストコンテキストへ認証済みクレームを注入する。
func withClaims(r *http.Request, userID int64, role model.Role) *http.Request {
	ctx := middleware.ContextWithClaims(r.Context(), &token.Claims{UserID: userID, Role: role}, "raw-token")
	return r.WithContext(ctx)
}

// withChiURLParam はテスト用にchiのURLパラメータを注入する。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// multipartRequest はフォーム値とファイルからmultipartリクエストを組み立てる。
func multipartRequest(t *testing.T, method, target string, fields map[string]string, files map[string][][]byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	for field, contents := range files {
		for i, data := range contents {
			fw, err := mw.CreateFormFile(field, field+string(rune('a'+i))+".png")
			if err != nil {
				t.Fatalf("CreateFormFile: %v", err)
			}
			fw.Write(data)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	req := httptest.NewRequest(method, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// parseAPIErrorResponse はレスポンスボディからエラーレスポンスをパースする。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var result middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v\nbody: %s", err, w.Body.String())
	}
}
