package storage

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/hitoshi/estatehub/internal/model"
)

// ImageLimits はアップロード画像の制限。
type ImageLimits struct {
	MaxBytes     int64
	MaxDimension int
	// MaxPixels はデコード前に確認する幅×高さの上限。0の場合はDefaultMaxPixels。
	MaxPixels int64
}

// DefaultMaxPixels は宣言された画素数の既定上限（40メガピクセル）。
const DefaultMaxPixels = 40_000_000

// jpegQuality は再エンコード時のJPEG品質。
const jpegQuality = 85

// PrepareImage はアップロードされたバイト列を画像としてデコードし、
// 最大辺をMaxDimension以内に縮小したJPEGに再エンコードする。
// 画像でないデータやサイズ超過はBadRequestのAPIErrorを返す。
func PrepareImage(data []byte, limits ImageLimits) ([]byte, error) {
	if len(data) == 0 {
		return nil, model.NewInvalidImageError("empty file")
	}
	if limits.MaxBytes > 0 && int64(len(data)) > limits.MaxBytes {
		return nil, model.NewInvalidImageError(fmt.Sprintf("file exceeds %d bytes", limits.MaxBytes))
	}

	// ヘッダーの宣言サイズだけを読み、巨大な画素バッファの確保を避ける
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, model.NewInvalidImageError("unsupported image format")
	}
	maxPixels := limits.MaxPixels
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > maxPixels {
		return nil, model.NewInvalidImageError(fmt.Sprintf("image exceeds %d pixels", maxPixels))
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, model.NewInvalidImageError("unsupported image format")
	}

	if limits.MaxDimension > 0 {
		img = imaging.Fit(img, limits.MaxDimension, limits.MaxDimension, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}
