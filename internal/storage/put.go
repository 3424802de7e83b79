package storage

import (
	"context"
	"log/slog"

	"github.com/hitoshi/estatehub/internal/model"
)

// Put はアップロードデータを画像として検証・再エンコードしてから保存する。
// 画像として不正な場合はBadRequestのAPIErrorを返す。
func Put(ctx context.Context, store Store, folder string, data []byte, limits ImageLimits) (model.ImageRef, error) {
	prepared, err := PrepareImage(data, limits)
	if err != nil {
		return model.ImageRef{}, err
	}
	return store.Upload(ctx, folder, prepared)
}

// Discard は不要になった画像を削除する。
// 削除の失敗は呼び出し元の処理結果に影響させず、ログに記録するのみとする。
func Discard(ctx context.Context, store Store, publicIDs ...string) {
	for _, id := range publicIDs {
		if id == "" {
			continue
		}
		if err := store.Delete(ctx, id); err != nil {
			slog.Warn("failed to delete image",
				slog.String("public_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
}
