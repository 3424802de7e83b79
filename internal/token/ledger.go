package token

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/estatehub/internal/model"
)

// Store はトークン台帳の永続化先。
type Store interface {
	// Create はレコードを追加し、採番したIDを設定する。
	Create(ctx context.Context, record *model.TokenRecord) error
	// FindByDigest はダイジェストでレコードを取得する。見つからない場合はnilを返す。
	FindByDigest(ctx context.Context, digest string) (*model.TokenRecord, error)
	// InvalidateByDigest はレコードを無効化する。存在しない場合もエラーにしない。
	InvalidateByDigest(ctx context.Context, digest string) error
	// InvalidateByUserID はユーザーの有効なレコードを全て無効化し、対象のダイジェストを返す。
	InvalidateByUserID(ctx context.Context, userID int64) ([]string, error)
}

// Cache は有効性判定の結果を保持するキャッシュ。
// 無効化の記録は有効の記録より優先され、Fillで上書きされてはならない。
type Cache interface {
	// Get はキャッシュ済みの有効性を返す。foundがfalseの場合は未キャッシュ。
	Get(ctx context.Context, digest string) (valid bool, found bool, err error)
	// Fill は未キャッシュの場合に限り判定結果を保存する。
	Fill(ctx context.Context, digest string, valid bool) error
	// Revoke は既存の値に関わらず無効を保存する。
	Revoke(ctx context.Context, digest string) error
}

// Ledger は発行済みトークンの有効性を記録するサーバー側の台帳。
// 記録のないトークンは無効として扱う。
type Ledger struct {
	store Store
	cache Cache
}

// NewLedger はLedgerを生成する。cacheはnilでもよい。
func NewLedger(store Store, cache Cache) *Ledger {
	return &Ledger{store: store, cache: cache}
}

// Digest はトークン文字列の台帳上のキー（SHA-256の16進表現）を返す。
func Digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Record はトークンを有効な状態で台帳に追加し、レコードIDを返す。
func (l *Ledger) Record(ctx context.Context, token string, userID int64) (int64, error) {
	record := &model.TokenRecord{
		TokenDigest: Digest(token),
		UserID:      userID,
		Valid:       true,
	}
	if err := l.store.Create(ctx, record); err != nil {
		return 0, fmt.Errorf("failed to record token: %w", err)
	}
	l.fill(ctx, record.TokenDigest, true)
	return record.ID, nil
}

// IsValid はトークンが台帳上で有効かどうかを返す。
func (l *Ledger) IsValid(ctx context.Context, token string) (bool, error) {
	digest := Digest(token)

	if l.cache != nil {
		valid, found, err := l.cache.Get(ctx, digest)
		if err != nil {
			slog.Warn("token cache lookup failed",
				slog.String("error", err.Error()),
			)
		} else if found {
			return valid, nil
		}
	}

	record, err := l.store.FindByDigest(ctx, digest)
	if err != nil {
		return false, fmt.Errorf("failed to look up token: %w", err)
	}
	valid := record != nil && record.Valid
	// 読み取り後に無効化が割り込んでも、Fillは無効化の記録を上書きしない
	l.fill(ctx, digest, valid)
	return valid, nil
}

// Invalidate はトークンを無効化する。未記録・無効化済みでもエラーにしない。
// キャッシュへの無効化の反映に失敗した場合はエラーを返す。
func (l *Ledger) Invalidate(ctx context.Context, token string) error {
	digest := Digest(token)
	if err := l.store.InvalidateByDigest(ctx, digest); err != nil {
		return fmt.Errorf("failed to invalidate token: %w", err)
	}
	return l.revoke(ctx, digest)
}

// InvalidateAllForUser はユーザーに紐づく全トークンを無効化する。
func (l *Ledger) InvalidateAllForUser(ctx context.Context, userID int64) error {
	digests, err := l.store.InvalidateByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to invalidate user tokens: %w", err)
	}
	var errs []error
	for _, d := range digests {
		if err := l.revoke(ctx, d); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (l *Ledger) fill(ctx context.Context, digest string, valid bool) {
	if l.cache == nil {
		return
	}
	if err := l.cache.Fill(ctx, digest, valid); err != nil {
		slog.Warn("token cache update failed",
			slog.String("error", err.Error()),
		)
	}
}

func (l *Ledger) revoke(ctx context.Context, digest string) error {
	if l.cache == nil {
		return nil
	}
	if err := l.cache.Revoke(ctx, digest); err != nil {
		return fmt.Errorf("failed to revoke cached token: %w", err)
	}
	return nil
}
