// Package security はパスワードハッシュ、フィールド暗号化、入力サニタイズなど
// アプリケーションのセキュリティ機能を提供する。
package security

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost はbcryptの既定のコスト係数。
const DefaultBcryptCost = 10

// PasswordHasher はbcryptによるパスワードの一方向ハッシュと検証を行う。
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher はPasswordHasherを生成する。
// costがbcryptの許容範囲外の場合はDefaultBcryptCostを使用する。
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	return &PasswordHasher{cost: cost}
}

// Hash は平文パスワードをソルト付きでハッシュ化する。
// 同じ平文でも呼び出しごとに異なるダイジェストを返す。
func (h *PasswordHasher) Hash(plaintext string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(digest), nil
}

// Verify は平文パスワードがダイジェストと一致するかを返す。
// ダイジェストが不正な形式の場合もfalseを返す。
func (h *PasswordHasher) Verify(plaintext, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}
