// Package otp はメール確認用ワンタイムパスワードの生成を提供する。
package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/hitoshi/estatehub/internal/model"
)

const (
	// DefaultLength はOTPコードの既定の桁数。
	DefaultLength = 10
	// DefaultTTL はOTPの既定の有効期間。
	DefaultTTL = 10 * time.Minute
)

// alphabet はOTPコードに使用する文字集合。紛らわしい小文字は含めない。
const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Config はOTP生成の設定。
type Config struct {
	Length int
	TTL    time.Duration
}

// Generator は暗号論的乱数源からOTPを生成する。
type Generator struct {
	length int
	ttl    time.Duration
	now    func() time.Time
}

// NewGenerator はGeneratorを生成する。ゼロ値の設定項目には既定値を使用する。
func NewGenerator(cfg Config) *Generator {
	if cfg.Length <= 0 {
		cfg.Length = DefaultLength
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	return &Generator{
		length: cfg.Length,
		ttl:    cfg.TTL,
		now:    time.Now,
	}
}

// Generate は固定長のコードと、現在時刻からTTL後の有効期限を持つOTPを返す。
func (g *Generator) Generate() (model.OTP, error) {
	code, err := randomCode(g.length)
	if err != nil {
		return model.OTP{}, err
	}
	return model.OTP{
		Code:      code,
		ExpiresAt: g.now().Add(g.ttl),
	}, nil
}

// TTL は設定された有効期間を返す。
func (g *Generator) TTL() time.Duration {
	return g.ttl
}

func randomCode(length int) (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate otp: %w", err)
		}
		buf[i] = alphabet[n.Int64()]
	}
	return string(buf), nil
}
