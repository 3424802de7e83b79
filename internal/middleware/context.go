// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"

	"github.com/hitoshi/estatehub/internal/token"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	claimsContextKey    = contextKey("claims")
	tokenContextKey     = contextKey("token")
	requestIDContextKey = contextKey("request_id")
	stateContextKey     = contextKey("request_state")
)

// requestState は外側のミドルウェアが内側で確定した情報を参照するための可変領域。
type requestState struct {
	userID int64
}

// ClaimsFromContext はガードを通過したリクエストのクレームを返す。
func ClaimsFromContext(ctx context.Context) (*token.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*token.Claims)
	return claims, ok && claims != nil
}

// TokenFromContext はガードが検証したトークン文字列（Bearer接頭辞なし）を返す。
func TokenFromContext(ctx context.Context) string {
	tok, _ := ctx.Value(tokenContextKey).(string)
	return tok
}

// UserIDFromContext は認証済みユーザーのIDを返す。
func UserIDFromContext(ctx context.Context) (int64, bool) {
	if claims, ok := ClaimsFromContext(ctx); ok {
		return claims.UserID, true
	}
	if st, ok := ctx.Value(stateContextKey).(*requestState); ok && st.userID != 0 {
		return st.userID, true
	}
	return 0, false
}

// ContextWithClaims はコンテキストにクレームとトークンを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithClaims(ctx context.Context, claims *token.Claims, rawToken string) context.Context {
	if st, ok := ctx.Value(stateContextKey).(*requestState); ok {
		st.userID = claims.UserID
	}
	ctx = context.WithValue(ctx, claimsContextKey, claims)
	return context.WithValue(ctx, tokenContextKey, rawToken)
}

// RequestIDFromContext はリクエストIDを返す。
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}

func withState(ctx context.Context) (context.Context, *requestState) {
	if st, ok := ctx.Value(stateContextKey).(*requestState); ok {
		return ctx, st
	}
	st := &requestState{}
	return context.WithValue(ctx, stateContextKey, st), st
}
