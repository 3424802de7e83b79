package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/hitoshi/estatehub/internal/metrics"
	"github.com/hitoshi/estatehub/internal/model"
	"github.com/hitoshi/estatehub/internal/token"
)

const bearerScheme = "Bearer "

// Access はルートごとのアクセス要件。
//
// RequiresAuthがfalseの場合は誰でもアクセスできる。
// RequiresAuthがtrueでAllowedRolesがnilの場合は認証済みであれば誰でもアクセスできる。
// AllowedRolesが空でない場合は、そのいずれかのロールを持つ場合のみアクセスできる。
type Access struct {
	RequiresAuth bool
	AllowedRoles []model.Role
}

// Public は認証不要のアクセス要件。
var Public = Access{}

// Authenticated は認証済みであれば誰でもアクセスできる要件を返す。
func Authenticated() Access {
	return Access{RequiresAuth: true}
}

// Roles は指定ロールのいずれかを要求するアクセス要件を返す。
func Roles(roles ...model.Role) Access {
	if roles == nil {
		roles = []model.Role{}
	}
	return Access{RequiresAuth: true, AllowedRoles: roles}
}

// validate はアクセス要件の定義ミスを検出する。
func (a Access) validate() error {
	if a.AllowedRoles != nil && len(a.AllowedRoles) == 0 {
		return fmt.Errorf("role requirement declared with an empty role set")
	}
	if !a.RequiresAuth && len(a.AllowedRoles) > 0 {
		return fmt.Errorf("role requirement declared without authentication")
	}
	for _, r := range a.AllowedRoles {
		if !r.Valid() {
			return fmt.Errorf("unknown role %q", r)
		}
	}
	return nil
}

// TokenVerifier はトークンの署名と有効期限を検証する。
type TokenVerifier interface {
	Verify(tokenString string) (*token.Claims, error)
}

// LedgerChecker はトークンが台帳上で有効かどうかを返す。
type LedgerChecker interface {
	IsValid(ctx context.Context, token string) (bool, error)
}

// GuardConfig はガードの設定。
type GuardConfig struct {
	// LedgerCheck がtrueの場合、署名が正しくても台帳で無効化されたトークンを拒否する。
	LedgerCheck bool
}

// Guard は本人確認とロール判定を1つのパイプラインで行う。
type Guard struct {
	verifier TokenVerifier
	ledger   LedgerChecker
	metrics  metrics.MetricsCollector
	config   GuardConfig
}

// NewGuard はGuardを生成する。
func NewGuard(verifier TokenVerifier, ledger LedgerChecker, m metrics.MetricsCollector, config GuardConfig) *Guard {
	if m == nil {
		m = metrics.Nop{}
	}
	return &Guard{verifier: verifier, ledger: ledger, metrics: m, config: config}
}

// Require はアクセス要件を満たすリクエストのみ通過させるミドルウェアを返す。
// 要件の定義が不正な場合はルート登録時にpanicする。
// 拒否したリクエストはハンドラーに到達せず、副作用を持たない。
func (g *Guard) Require(access Access) func(next http.Handler) http.Handler {
	if err := access.validate(); err != nil {
		panic(fmt.Sprintf("middleware: invalid access requirement: %v", err))
	}

	return func(next http.Handler) http.Handler {
		if !access.RequiresAuth {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				g.reject(w, r, metrics.RejectMissingToken, nil)
				return
			}

			claims, err := g.verifier.Verify(raw)
			if err != nil {
				g.reject(w, r, metrics.RejectInvalidToken, err)
				return
			}

			if g.config.LedgerCheck {
				valid, err := g.ledger.IsValid(r.Context(), raw)
				if err != nil {
					slog.Error("failed to check token ledger",
						slog.String("error", err.Error()),
						slog.String("request_id", RequestIDFromContext(r.Context())),
					)
					WriteInternalServerError(w)
					return
				}
				if !valid {
					g.reject(w, r, metrics.RejectRevoked, nil)
					return
				}
			}

			if len(access.AllowedRoles) > 0 && !slices.Contains(access.AllowedRoles, claims.Role) {
				g.metrics.RecordGuardRejection(metrics.RejectForbidden)
				slog.Info("request forbidden",
					slog.Int64("user_id", claims.UserID),
					slog.String("role", string(claims.Role)),
					slog.String("path", r.URL.Path),
				)
				WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError(""))
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims, raw)))
		})
	}
}

func (g *Guard) reject(w http.ResponseWriter, r *http.Request, reason string, cause error) {
	g.metrics.RecordGuardRejection(reason)
	attrs := []any{
		slog.String("reason", reason),
		slog.String("path", r.URL.Path),
	}
	if cause != nil {
		attrs = append(attrs, slog.String("error", cause.Error()))
	}
	slog.Info("request unauthorized", attrs...)
	WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
}

// bearerToken はAuthorizationヘッダーからBearerトークンを取り出す。
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if len(header) <= len(bearerScheme) || !strings.EqualFold(header[:len(bearerScheme)], bearerScheme) {
		return "", false
	}
	raw := strings.TrimSpace(header[len(bearerScheme):])
	return raw, raw != ""
}
