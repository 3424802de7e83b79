// Package token はJWTの発行・検証と、サーバー側のトークン台帳を提供する。
package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/estatehub/internal/model"
)

// DefaultTTL はトークンの既定の有効期間。
const DefaultTTL = 2 * time.Hour

// 検証失敗の種別。呼び出し元は区別せずUnauthorizedとして扱い、種別はログにのみ残す。
var (
	ErrTokenMalformed = errors.New("token is malformed")
	ErrTokenInvalid   = errors.New("token signature is invalid")
	ErrTokenExpired   = errors.New("token is expired")
)

// Claims はトークンに格納する識別情報。パスワードや電話番号は含めない。
type Claims struct {
	UserID       int64          `json:"id"`
	Username     string         `json:"username"`
	Email        string         `json:"email"`
	Role         model.Role     `json:"role"`
	ProfileImage model.ImageRef `json:"profileImage"`
	jwt.RegisteredClaims
}

// ClaimsFor はユーザーからClaimsを組み立てる。
func ClaimsFor(u *model.User) Claims {
	return Claims{
		UserID:       u.ID,
		Username:     u.Username,
		Email:        u.Email,
		Role:         u.Role,
		ProfileImage: u.ProfileImage,
	}
}

// IssuerConfig はトークン発行の設定。
type IssuerConfig struct {
	Secret string
	TTL    time.Duration
}

// Issuer はHS256で署名したトークンを発行・検証する。
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer はIssuerを生成する。シークレットが空の場合はエラーを返す。
func NewIssuer(cfg IssuerConfig) (*Issuer, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("token secret must not be empty")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	return &Issuer{
		secret: []byte(cfg.Secret),
		ttl:    cfg.TTL,
		now:    time.Now,
	}, nil
}

// Issue はClaimsに発行時刻・有効期限・一意なIDを付与して署名済みトークンを返す。
func (i *Issuer) Issue(claims Claims) (string, error) {
	now := i.now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   strconv.FormatInt(claims.UserID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify は署名を検証した後に有効期限を確認し、Claimsを返す。
func (i *Issuer) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		default:
			return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
		}
	}
	return claims, nil
}

// TTL は設定されたトークンの有効期間を返す。
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}
