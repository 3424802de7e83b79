package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// ErrUndecryptable は暗号文を復号できない場合のエラー。
// 暗号文の破損や鍵のローテーションで発生する。
var ErrUndecryptable = errors.New("field cannot be decrypted")

// FieldCipherConfig はフィールド暗号化の設定。
type FieldCipherConfig struct {
	Key []byte // AES-256鍵（32バイト）
}

// FieldCipher はAES-256-GCMで個人情報フィールドを可逆暗号化する。
// 暗号文は nonce || ciphertext をBase64エンコードした文字列で表現する。
type FieldCipher struct {
	aead cipher.AEAD
}

// NewFieldCipher はFieldCipherを生成する。鍵長が32バイトでない場合はエラーを返す。
func NewFieldCipher(cfg FieldCipherConfig) (*FieldCipher, error) {
	if len(cfg.Key) != 32 {
		return nil, fmt.Errorf("field cipher key must be 32 bytes, got %d", len(cfg.Key))
	}
	block, err := aes.NewCipher(cfg.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &FieldCipher{aead: aead}, nil
}

// Encrypt は平文を暗号化する。
func (c *FieldCipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt は暗号文を復号する。失敗時はErrUndecryptableをラップして返す。
func (c *FieldCipher) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUndecryptable, err)
	}
	ns := c.aead.NonceSize()
	if len(raw) < ns {
		return "", fmt.Errorf("%w: ciphertext too short", ErrUndecryptable)
	}
	plain, err := c.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUndecryptable, err)
	}
	return string(plain), nil
}
