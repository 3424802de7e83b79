// Package auth はユーザー登録、メール確認、ログイン、トークン発行などの認証フローを提供する。
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/estatehub/internal/metrics"
	"github.com/hitoshi/estatehub/internal/model"
	"github.com/hitoshi/estatehub/internal/repository"
	"github.com/hitoshi/estatehub/internal/security"
	"github.com/hitoshi/estatehub/internal/storage"
	"github.com/hitoshi/estatehub/internal/token"
	"github.com/hitoshi/estatehub/internal/validation"
)

// BearerPrefix はクライアントに返すトークンの接頭辞。
const BearerPrefix = "Bearer "

// DefaultPhoneRegion は国番号のない電話番号を解釈する際の既定リージョン。
const DefaultPhoneRegion = "US"

// PasswordHasher はパスワードのハッシュ化と検証を行う。
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, digest string) bool
}

// FieldCipher は個人情報フィールドの可逆暗号化を行う。
type FieldCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// OTPGenerator はメール確認用のワンタイムパスワードを生成する。
type OTPGenerator interface {
	Generate() (model.OTP, error)
	TTL() time.Duration
}

// TokenIssuer は署名付きトークンを発行する。
type TokenIssuer interface {
	Issue(claims token.Claims) (string, error)
}

// TokenLedger はサーバー側のトークン台帳。
type TokenLedger interface {
	Record(ctx context.Context, token string, userID int64) (int64, error)
	Invalidate(ctx context.Context, token string) error
}

// OTPMailer はOTPをメールで送信する。
type OTPMailer interface {
	SendOTP(ctx context.Context, to, code string, minutes int) error
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	ImageLimits storage.ImageLimits
	PhoneRegion string
}

// Deps は認証サービスの依存コンポーネント。
type Deps struct {
	Users   repository.UserRepository
	Hasher  PasswordHasher
	Cipher  FieldCipher
	OTPs    OTPGenerator
	Issuer  TokenIssuer
	Ledger  TokenLedger
	Images  storage.Store
	Mailer  OTPMailer
	Metrics metrics.MetricsCollector
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	users   repository.UserRepository
	hasher  PasswordHasher
	cipher  FieldCipher
	otps    OTPGenerator
	issuer  TokenIssuer
	ledger  TokenLedger
	images  storage.Store
	mailer  OTPMailer
	metrics metrics.MetricsCollector
	config  ServiceConfig
	now     func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// dummyPassword は未登録メールアドレスでのログイン時に照合するダミーの平文。
const dummyPassword = "estatehub-unknown-user"

// dummyDigest は設定されたコストで生成したダミーのハッシュを返す。
func (s *Service) dummyDigest() string {
	s.dummyOnce.Do(func() {
		digest, err := s.hasher.Hash(dummyPassword)
		if err != nil {
			slog.Warn("failed to hash dummy password", slog.String("error", err.Error()))
			return
		}
		s.dummyHash = digest
	})
	return s.dummyHash
}

// NewService はServiceを生成する。
func NewService(deps Deps, config ServiceConfig) *Service {
	if config.PhoneRegion == "" {
		config.PhoneRegion = DefaultPhoneRegion
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.Nop{}
	}
	return &Service{
		users:   deps.Users,
		hasher:  deps.Hasher,
		cipher:  deps.Cipher,
		otps:    deps.OTPs,
		issuer:  deps.Issuer,
		ledger:  deps.Ledger,
		images:  deps.Images,
		mailer:  deps.Mailer,
		metrics: m,
		config:  config,
		now:     time.Now,
	}
}

// SignUpInput はユーザー登録の入力。
type SignUpInput struct {
	Username     string `json:"username" validate:"required,min=8,max=150"`
	Email        string `json:"email" validate:"required,email"`
	Password     string `json:"password" validate:"required,maxbytes=72"`
	Phone        string `json:"phone" validate:"required,min=8,max=150"`
	ProfileImage []byte `json:"-"`
}

// SignUpResult はユーザー登録の結果。
// EmailDeliveredがfalseの場合、クライアントはOTPの再送を要求できる。
type SignUpResult struct {
	User           *model.User
	EmailDelivered bool
}

// SignUp はユーザーを未確認状態で登録し、確認用OTPをメールで送信する。
// メール送信の失敗は登録を取り消さず、結果のEmailDeliveredで通知する。
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (*SignUpResult, error) {
	in.Email = NormalizeEmail(in.Email)
	in.Username = strings.TrimSpace(in.Username)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	if err := s.ensureAvailable(ctx, in.Email, in.Username); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	encryptedPhone, err := s.cipher.Encrypt(security.NormalizePhone(in.Phone, s.config.PhoneRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt phone: %w", err)
	}

	var avatar model.ImageRef
	if len(in.ProfileImage) > 0 {
		avatar, err = storage.Put(ctx, s.images, storage.FolderProfileImage, in.ProfileImage, s.config.ImageLimits)
		if err != nil {
			return nil, fmt.Errorf("failed to upload profile image: %w", err)
		}
	}

	code, err := s.otps.Generate()
	if err != nil {
		storage.Discard(ctx, s.images, avatar.PublicID)
		return nil, fmt.Errorf("failed to generate otp: %w", err)
	}

	user := &model.User{
		Username:       in.Username,
		Email:          in.Email,
		PasswordHash:   hash,
		EncryptedPhone: encryptedPhone,
		ProfileImage:   avatar,
		Role:           model.RoleUser,
		Status:         model.StatusOffline,
		OTP:            &code,
	}
	if err := s.users.Create(ctx, user); err != nil {
		storage.Discard(ctx, s.images, avatar.PublicID)
		return nil, mapUserWriteError(err, in.Username)
	}

	s.metrics.RecordSignup()
	slog.Info("user signed up",
		slog.Int64("user_id", user.ID),
	)

	delivered := s.sendOTP(ctx, user.Email, code)
	return &SignUpResult{User: user, EmailDelivered: delivered}, nil
}

// ConfirmEmail はOTPを照合してメールアドレスを確認済みにする。
// 成功時は使用済みOTPを新しいOTPで置き換え、再利用できないようにする。
func (s *Service) ConfirmEmail(ctx context.Context, email, code string) (*model.User, error) {
	user, err := s.users.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewEmailNotFoundError()
	}
	if user.EmailConfirmed {
		return nil, model.NewEmailAlreadyConfirmedError()
	}
	if user.OTP == nil || user.OTP.Code == "" {
		return nil, model.NewInvalidOTPError()
	}
	if subtle.ConstantTimeCompare([]byte(user.OTP.Code), []byte(strings.TrimSpace(code))) != 1 {
		return nil, model.NewOTPMismatchError()
	}
	if user.OTP.Expired(s.now()) {
		return nil, model.NewOTPExpiredError()
	}

	next, err := s.otps.Generate()
	if err != nil {
		return nil, fmt.Errorf("failed to generate otp: %w", err)
	}
	user.EmailConfirmed = true
	user.OTP = &next
	if err := s.users.UpdateVerification(ctx, user); err != nil {
		if errors.Is(err, repository.ErrAlreadyConfirmed) {
			return nil, model.NewEmailAlreadyConfirmedError()
		}
		return nil, fmt.Errorf("failed to update verification: %w", err)
	}

	slog.Info("email confirmed", slog.Int64("user_id", user.ID))
	return user, nil
}

// ResendOTP は未確認ユーザーのOTPを再生成してメールで送信する。
// 戻り値はメールが送信できたかどうかを表す。
func (s *Service) ResendOTP(ctx context.Context, email string) (bool, error) {
	user, err := s.users.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return false, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return false, model.NewEmailNotFoundError()
	}
	if user.EmailConfirmed {
		return false, model.NewEmailAlreadyConfirmedError()
	}

	code, err := s.otps.Generate()
	if err != nil {
		return false, fmt.Errorf("failed to generate otp: %w", err)
	}
	user.OTP = &code
	if err := s.users.UpdateVerification(ctx, user); err != nil {
		if errors.Is(err, repository.ErrAlreadyConfirmed) {
			return false, model.NewEmailAlreadyConfirmedError()
		}
		return false, fmt.Errorf("failed to update otp: %w", err)
	}

	return s.sendOTP(ctx, user.Email, code), nil
}

// LoginResult はログインの結果。
type LoginResult struct {
	Token string // "Bearer <token>"
	User  *model.User
}

// Login は資格情報を検証し、トークンを発行して台帳に記録する。
// メールアドレスの未登録とパスワード不一致は区別せず同じエラーを返す。
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.users.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		// 未登録でも照合を1回行い、応答時間で登録有無が判別できないようにする
		s.hasher.Verify(password, s.dummyDigest())
		s.metrics.RecordLogin(metrics.LoginUnauthorized)
		return nil, model.NewInvalidCredentialsError()
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		s.metrics.RecordLogin(metrics.LoginUnauthorized)
		return nil, model.NewInvalidCredentialsError()
	}
	if !user.EmailConfirmed {
		s.metrics.RecordLogin(metrics.LoginUnconfirmed)
		return nil, model.NewEmailNotConfirmedError()
	}

	bearer, err := s.issueAndRecord(ctx, user)
	if err != nil {
		return nil, err
	}

	if err := s.users.UpdateStatus(ctx, user.ID, model.StatusOnline); err != nil {
		s.revoke(ctx, bearer)
		return nil, fmt.Errorf("failed to update session status: %w", err)
	}
	user.Status = model.StatusOnline

	s.metrics.RecordLogin(metrics.LoginSuccess)
	slog.Info("user logged in", slog.Int64("user_id", user.ID))
	return &LoginResult{Token: bearer, User: user}, nil
}

// ChangePasswordInput はパスワード変更の入力。
type ChangePasswordInput struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,maxbytes=72"`
}

// ChangePassword は現在のパスワードを検証してから新しいパスワードに変更する。
func (s *Service) ChangePassword(ctx context.Context, userID int64, in ChangePasswordInput) error {
	if err := validation.Struct(in); err != nil {
		return err
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError(userID)
	}
	if !s.hasher.Verify(in.OldPassword, user.PasswordHash) {
		return model.NewWrongPasswordError()
	}
	if s.hasher.Verify(in.NewPassword, user.PasswordHash) {
		return model.NewSamePasswordError()
	}

	hash, err := s.hasher.Hash(in.NewPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewUserNotFoundError(userID)
		}
		return fmt.Errorf("failed to update password: %w", err)
	}

	slog.Info("password changed", slog.Int64("user_id", userID))
	return nil
}

// Logout はセッション状態をOFFLINEにし、使用中のトークンを台帳で無効化する。
func (s *Service) Logout(ctx context.Context, userID int64, rawToken string) error {
	if err := s.users.UpdateStatus(ctx, userID, model.StatusOffline); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewUserNotFoundError(userID)
		}
		return fmt.Errorf("failed to update session status: %w", err)
	}

	if rawToken != "" {
		if err := s.ledger.Invalidate(ctx, rawToken); err != nil {
			return fmt.Errorf("failed to invalidate token: %w", err)
		}
	}

	slog.Info("user logged out", slog.Int64("user_id", userID))
	return nil
}

// RefreshToken は管理者が指定ユーザーのトークンを新たに発行する。
func (s *Service) RefreshToken(ctx context.Context, userID int64) (string, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return "", model.NewUserNotFoundError(userID)
	}

	bearer, err := s.issueAndRecord(ctx, user)
	if err != nil {
		return "", err
	}

	slog.Info("token refreshed", slog.Int64("user_id", userID))
	return bearer, nil
}

// NormalizeEmail はメールアドレスを比較用に正規化する。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// issueAndRecord はトークンを発行して台帳に記録し、Bearer形式で返す。
// 台帳への記録に失敗した場合はトークンを返さない。
func (s *Service) issueAndRecord(ctx context.Context, user *model.User) (string, error) {
	raw, err := s.issuer.Issue(token.ClaimsFor(user))
	if err != nil {
		return "", fmt.Errorf("failed to issue token: %w", err)
	}
	if _, err := s.ledger.Record(ctx, raw, user.ID); err != nil {
		return "", fmt.Errorf("failed to record token: %w", err)
	}
	return BearerPrefix + raw, nil
}

// revoke は記録済みトークンを無効化する。失敗はログのみ。
func (s *Service) revoke(ctx context.Context, bearer string) {
	if err := s.ledger.Invalidate(ctx, strings.TrimPrefix(bearer, BearerPrefix)); err != nil {
		slog.Warn("failed to revoke token", slog.String("error", err.Error()))
	}
}

// ensureAvailable はメールアドレスとユーザー名が未使用であることを確認する。
func (s *Service) ensureAvailable(ctx context.Context, email, username string) error {
	existing, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to find user by email: %w", err)
	}
	if existing != nil {
		return model.NewEmailTakenError()
	}

	existing, err = s.users.FindByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("failed to find user by username: %w", err)
	}
	if existing != nil {
		return model.NewUsernameTakenError(username)
	}
	return nil
}

// sendOTP はOTPメールを送信し、送信できたかどうかを返す。
func (s *Service) sendOTP(ctx context.Context, email string, code model.OTP) bool {
	minutes := int(s.otps.TTL() / time.Minute)
	if err := s.mailer.SendOTP(ctx, email, code.Code, minutes); err != nil {
		s.metrics.RecordOTPEmailFailure()
		slog.Warn("failed to send otp email",
			slog.String("error", err.Error()),
		)
		return false
	}
	return true
}

// mapUserWriteError はユーザー書き込み時の一意制約違反をAPIErrorに変換する。
func mapUserWriteError(err error, username string) error {
	var dup *repository.DuplicateError
	if errors.As(err, &dup) {
		switch dup.Constraint {
		case repository.ConstraintUserEmail:
			return model.NewEmailTakenError()
		case repository.ConstraintUserUsername:
			return model.NewUsernameTakenError(username)
		}
	}
	return fmt.Errorf("failed to create user: %w", err)
}
