// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/estatehub/internal/auth"
	"github.com/hitoshi/estatehub/internal/middleware"
	"github.com/hitoshi/estatehub/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	SignUp(ctx context.Context, in auth.SignUpInput) (*auth.SignUpResult, error)
	ConfirmEmail(ctx context.Context, email, code string) (*model.User, error)
	ResendOTP(ctx context.Context, email string) (bool, error)
	Login(ctx context.Context, email, password string) (*auth.LoginResult, error)
	ChangePassword(ctx context.Context, userID int64, in auth.ChangePasswordInput) error
	Logout(ctx context.Context, userID int64, rawToken string) error
	RefreshToken(ctx context.Context, userID int64) (string, error)
}

// UploadConfig はmultipartアップロードの上限設定。
type UploadConfig struct {
	// MaxImageBytes は1ファイルあたりの上限バイト数。
	MaxImageBytes int64
}

// maxBody は画像n枚を含むリクエストボディの上限を返す。
func (c UploadConfig) maxBody(files int) int64 {
	return c.MaxImageBytes*int64(files) + 1<<20
}

// AuthHandler は認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	upload  UploadConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, upload UploadConfig) *AuthHandler {
	return &AuthHandler{service: service, upload: upload}
}

type signUpResponse struct {
	User           userResponse `json:"user"`
	EmailDelivered bool         `json:"emailDelivered"`
}

type confirmEmailRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// SignUp はユーザー登録を処理する。
// POST /api/users/auth/signup (multipart: username, email, password, phone, profileImage)
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	if err := parseMultipart(w, r, h.upload.maxBody(1)); err != nil {
		handleServiceError(w, r, err)
		return
	}

	image, err := formFile(r, "profileImage", h.upload.MaxImageBytes)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	result, err := h.service.SignUp(r.Context(), auth.SignUpInput{
		Username:     r.FormValue("username"),
		Email:        r.FormValue("email"),
		Password:     r.FormValue("password"),
		Phone:        r.FormValue("phone"),
		ProfileImage: image,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, signUpResponse{
		User:           toUserResponse(result.User),
		EmailDelivered: result.EmailDelivered,
	})
}

// ConfirmEmail はOTPでメールアドレスを確認する。
// PUT /api/users/confirmEmail
func (h *AuthHandler) ConfirmEmail(w http.ResponseWriter, r *http.Request) {
	var req confirmEmailRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}
	if req.Email == "" || req.OTP == "" {
		handleServiceError(w, r, model.NewValidationError("email and otp are required"))
		return
	}

	user, err := h.service.ConfirmEmail(r.Context(), req.Email, req.OTP)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// ResendOTP は未確認のメールアドレスにOTPを再送する。
// POST /api/users/auth/resend-otp
func (h *AuthHandler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}
	if req.Email == "" {
		handleServiceError(w, r, model.NewValidationError("email is required"))
		return
	}

	delivered, err := h.service.ResendOTP(r.Context(), req.Email)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		EmailDelivered bool `json:"emailDelivered"`
	}{delivered})
}

// Login はメールアドレスとパスワードで認証し、トークンを返す。
// POST /api/users/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		handleServiceError(w, r, model.NewValidationError("email and password are required"))
		return
	}

	result, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token: result.Token,
		User:  toUserResponse(result.User),
	})
}

// Logout はセッションを終了し、使用中のトークンを無効化する。
// POST /api/users/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())

	if err := h.service.Logout(r.Context(), userID, middleware.TokenFromContext(r.Context())); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Logged out"})
}

// RefreshToken は指定ユーザーのトークンを再発行する。
// GET /api/users/refresh/{id}
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	bearer, err := h.service.RefreshToken(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{Token: bearer})
}

// ChangePassword はパスワードを変更する。
// PUT /api/users/change-password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())

	var req auth.ChangePasswordInput
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	if err := h.service.ChangePassword(r.Context(), userID, req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Password changed"})
}
