// Package cache はRedisを用いたキャッシュを提供する。
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Connect はRedis URLからクライアントを生成し、疎通を確認する。
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	slog.Info("redis connected", slog.String("addr", opts.Addr))
	return client, nil
}

const tokenKeyPrefix = "auth:token:"

// TokenCache はトークン台帳の有効性判定結果をRedisに保持する。
// 有効の記録はSETNXでのみ書き込み、無効化の記録を上書きしない。
type TokenCache struct {
	client     redis.Cmdable
	ttl        time.Duration
	revokedTTL time.Duration
}

// NewTokenCache はTokenCacheを生成する。
// revokedTTLは無効化の記録の保持期間で、トークンの有効期間以上を指定する。0の場合は期限なし。
func NewTokenCache(client redis.Cmdable, ttl, revokedTTL time.Duration) *TokenCache {
	return &TokenCache{client: client, ttl: ttl, revokedTTL: revokedTTL}
}

func tokenKey(digest string) string {
	return tokenKeyPrefix + digest
}

// Get はキャッシュ済みの有効性を返す。キーが存在しない場合はfoundがfalseになる。
func (c *TokenCache) Get(ctx context.Context, digest string) (bool, bool, error) {
	v, err := c.client.Get(ctx, tokenKey(digest)).Result()
	if errors.Is(err, redis.Nil) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("failed to get token cache: %w", err)
	}
	return v == "1", true, nil
}

// Fill はキーが存在しない場合に限り有効性をTTL付きで保存する。
func (c *TokenCache) Fill(ctx context.Context, digest string, valid bool) error {
	val := "0"
	if valid {
		val = "1"
	}
	if err := c.client.SetNX(ctx, tokenKey(digest), val, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to fill token cache: %w", err)
	}
	return nil
}

// Revoke は既存の値を無効で上書きする。
func (c *TokenCache) Revoke(ctx context.Context, digest string) error {
	if err := c.client.Set(ctx, tokenKey(digest), "0", c.revokedTTL).Err(); err != nil {
		return fmt.Errorf("failed to revoke token cache: %w", err)
	}
	return nil
}
