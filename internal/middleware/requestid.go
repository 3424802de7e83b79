package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// RequestIDHeader はリクエストIDを運ぶヘッダー名。
const RequestIDHeader = "X-Request-ID"

const maxRequestIDLength = 128

// NewRequestIDMiddleware はリクエストIDを採番してコンテキストとレスポンスヘッダーに設定する。
// クライアントが妥当なIDを送った場合はそれを引き継ぐ。
func NewRequestIDMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" || len(id) > maxRequestIDLength || !printable(id) {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)

			ctx, _ := withState(context.WithValue(r.Context(), requestIDContextKey, id))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func printable(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x21 || s[i] > 0x7e {
			return false
		}
	}
	return true
}
