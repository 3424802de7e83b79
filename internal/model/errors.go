package model

import (
	"errors"
	"fmt"
)

// ErrorKind はAPIErrorの分類を表す。ハンドラー層でHTTPステータスに変換される。
type ErrorKind int

const (
	// KindInternal は分類されない内部エラー。
	KindInternal ErrorKind = iota
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindBadRequest
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string    // エラーコード
	Message  string    // エラーメッセージ
	Category string    // カテゴリ: auth, validation, listing, category, system
	Action   string    // ユーザー向け対処方法
	Kind     ErrorKind // エラー分類
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Is はエラーコードが一致する場合にtrueを返す。
// errors.Is(err, model.NewEmailNotConfirmedError()) のように比較できる。
func (e *APIError) Is(target error) bool {
	var t *APIError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// KindOf はエラーの分類を返す。APIError以外はKindInternalになる。
func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindInternal
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeEmailNotConfirmed  = "EMAIL_NOT_CONFIRMED"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeEmailNotFound      = "EMAIL_NOT_FOUND"
	ErrCodeEmailTaken         = "EMAIL_TAKEN"
	ErrCodeUsernameTaken      = "USERNAME_TAKEN"
	ErrCodeEmailConfirmed     = "EMAIL_ALREADY_CONFIRMED"
	ErrCodeSamePassword       = "SAME_PASSWORD"
	ErrCodeInvalidOTP         = "INVALID_OTP"
	ErrCodeOTPMismatch        = "OTP_MISMATCH"
	ErrCodeOTPExpired         = "OTP_EXPIRED"
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeInvalidImage       = "INVALID_IMAGE"
	ErrCodeImageRequired      = "IMAGE_REQUIRED"
	ErrCodeConcurrentUpdate   = "CONCURRENT_UPDATE"
	ErrCodeListingNotFound    = "LISTING_NOT_FOUND"
	ErrCodeListingTitleTaken  = "LISTING_TITLE_TAKEN"
	ErrCodeTooManyImages      = "TOO_MANY_IMAGES"
	ErrCodeCategoryNotFound   = "CATEGORY_NOT_FOUND"
	ErrCodeCategoryNameTaken  = "CATEGORY_NAME_TAKEN"
	ErrCodeInvalidPagination  = "INVALID_PAGINATION"
	ErrCodeInternal           = "INTERNAL_ERROR"
	ErrCodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
)

// NewUnauthorizedError は認証失敗エラーを生成する。
// トークンの欠落・不正・期限切れを区別しない。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Access denied, no valid token provided",
		Category: "auth",
		Action:   "Log in again to obtain a new token.",
		Kind:     KindUnauthorized,
	}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
// メールアドレスの存在有無を推測されないよう、常に同じ文言を返す。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Wrong Password Or Email",
		Category: "auth",
		Action:   "Check your email and password.",
		Kind:     KindUnauthorized,
	}
}

// NewWrongPasswordError はパスワード変更時に現在のパスワードが一致しない場合のエラーを生成する。
func NewWrongPasswordError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Old password is incorrect",
		Category: "auth",
		Action:   "Enter your current password.",
		Kind:     KindUnauthorized,
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError(message string) *APIError {
	if message == "" {
		message = "You are not allowed to access this resource"
	}
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  message,
		Category: "auth",
		Action:   "Use an account with the required role.",
		Kind:     KindForbidden,
	}
}

// NewEmailNotConfirmedError はメール未確認のままログインしようとした場合のエラーを生成する。
func NewEmailNotConfirmedError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailNotConfirmed,
		Message:  "Confirm Your Email First",
		Category: "auth",
		Action:   "Enter the code sent to your email address.",
		Kind:     KindForbidden,
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError(id int64) *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  fmt.Sprintf("User with id %d not found", id),
		Category: "auth",
		Action:   "Check the user id.",
		Kind:     KindNotFound,
	}
}

// NewEmailNotFoundError はメールアドレスが登録されていない場合のエラーを生成する。
func NewEmailNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailNotFound,
		Message:  "This Email Does Not Exist",
		Category: "auth",
		Action:   "Sign up first.",
		Kind:     KindNotFound,
	}
}

// NewEmailTakenError はメールアドレス重複エラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailTaken,
		Message:  "This email is already registered",
		Category: "auth",
		Action:   "Log in or use another email address.",
		Kind:     KindConflict,
	}
}

// NewUsernameTakenError はユーザー名重複エラーを生成する。
func NewUsernameTakenError(username string) *APIError {
	return &APIError{
		Code:     ErrCodeUsernameTaken,
		Message:  fmt.Sprintf("Username %q is already taken", username),
		Category: "auth",
		Action:   "Choose another username.",
		Kind:     KindConflict,
	}
}

// NewEmailAlreadyConfirmedError は確認済みメールを再確認しようとした場合のエラーを生成する。
func NewEmailAlreadyConfirmedError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailConfirmed,
		Message:  "This Email Is Already Confirmed. Please Go To Login Page",
		Category: "auth",
		Action:   "Log in with your email and password.",
		Kind:     KindConflict,
	}
}

// NewSamePasswordError は新旧パスワードが同一の場合のエラーを生成する。
func NewSamePasswordError() *APIError {
	return &APIError{
		Code:     ErrCodeSamePassword,
		Message:  "New password cannot be the same as the old password",
		Category: "auth",
		Action:   "Choose a different password.",
		Kind:     KindConflict,
	}
}

// NewInvalidOTPError は保留中のOTPが存在しない場合のエラーを生成する。
func NewInvalidOTPError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidOTP,
		Message:  "Invalid OTP",
		Category: "auth",
		Action:   "Request a new code.",
		Kind:     KindBadRequest,
	}
}

// NewOTPMismatchError はOTPが一致しない場合のエラーを生成する。
func NewOTPMismatchError() *APIError {
	return &APIError{
		Code:     ErrCodeOTPMismatch,
		Message:  "OTP does not match",
		Category: "auth",
		Action:   "Check the code in your email.",
		Kind:     KindBadRequest,
	}
}

// NewOTPExpiredError はOTPの有効期限切れエラーを生成する。
func NewOTPExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeOTPExpired,
		Message:  "OTP has expired",
		Category: "auth",
		Action:   "Request a new code.",
		Kind:     KindBadRequest,
	}
}

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  message,
		Category: "validation",
		Action:   "Fix the request fields and try again.",
		Kind:     KindBadRequest,
	}
}

// NewInvalidImageError は画像として解釈できないファイルのエラーを生成する。
func NewInvalidImageError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidImage,
		Message:  fmt.Sprintf("Only image files are allowed: %s", reason),
		Category: "validation",
		Action:   "Upload a JPEG, PNG or GIF image.",
		Kind:     KindBadRequest,
	}
}

// NewImageRequiredError は必須画像が添付されていない場合のエラーを生成する。
func NewImageRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeImageRequired,
		Message:  "Image file is required",
		Category: "validation",
		Action:   "Attach an image file.",
		Kind:     KindBadRequest,
	}
}

// NewTooManyImagesError は添付画像数の上限超過エラーを生成する。
func NewTooManyImagesError(limit int) *APIError {
	return &APIError{
		Code:     ErrCodeTooManyImages,
		Message:  fmt.Sprintf("At most %d images are allowed", limit),
		Category: "validation",
		Action:   "Remove some images and try again.",
		Kind:     KindBadRequest,
	}
}

// NewConcurrentUpdateError は楽観ロックの競合エラーを生成する。
func NewConcurrentUpdateError() *APIError {
	return &APIError{
		Code:     ErrCodeConcurrentUpdate,
		Message:  "The resource was modified by another request",
		Category: "system",
		Action:   "Reload and try again.",
		Kind:     KindConflict,
	}
}

// NewListingNotFoundError は物件が見つからない場合のエラーを生成する。
func NewListingNotFoundError(id int64) *APIError {
	return &APIError{
		Code:     ErrCodeListingNotFound,
		Message:  fmt.Sprintf("Listing with id %d not found", id),
		Category: "listing",
		Action:   "Check the listing id.",
		Kind:     KindNotFound,
	}
}

// NewListingTitleTakenError は物件タイトル重複エラーを生成する。
func NewListingTitleTakenError(title string) *APIError {
	return &APIError{
		Code:     ErrCodeListingTitleTaken,
		Message:  fmt.Sprintf("A listing titled %q already exists", title),
		Category: "listing",
		Action:   "Choose another title.",
		Kind:     KindConflict,
	}
}

// NewCategoryNotFoundError はカテゴリが見つからない場合のエラーを生成する。
func NewCategoryNotFoundError(id int64) *APIError {
	return &APIError{
		Code:     ErrCodeCategoryNotFound,
		Message:  fmt.Sprintf("Category with id %d not found", id),
		Category: "category",
		Action:   "Check the category id.",
		Kind:     KindNotFound,
	}
}

// NewCategoryNameTakenError はカテゴリ名重複エラーを生成する。
func NewCategoryNameTakenError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeCategoryNameTaken,
		Message:  fmt.Sprintf("This Category Name: %s Already Exists", name),
		Category: "category",
		Action:   "Choose another name.",
		Kind:     KindConflict,
	}
}

// NewInvalidPaginationError はページング指定が不正な場合のエラーを生成する。
func NewInvalidPaginationError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPagination,
		Message:  "pageNumber must be >= 1 and reviewPerPage between 1 and 100",
		Category: "validation",
		Action:   "Fix the query parameters.",
		Kind:     KindBadRequest,
	}
}

// NewInternalError は内部エラーの統一レスポンス用エラーを生成する。
// 詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "An internal error occurred",
		Category: "system",
		Action:   "Try again later.",
		Kind:     KindInternal,
	}
}
