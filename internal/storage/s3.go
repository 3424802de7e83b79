// Package storage は画像のオブジェクトストレージへの保存を提供する。
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/hitoshi/estatehub/internal/model"
)

// 画像の保存先フォルダ。
const (
	FolderProfileImage = "ProfileImage"
	FolderListing      = "Listing"
	FolderCategory     = "categories"
)

// ErrNotConfigured はオブジェクトストレージが未設定の場合に返される。
var ErrNotConfigured = errors.New("object storage is not configured")

// S3Config はS3互換ストレージの接続設定。
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	PublicBaseURL   string
	AccessKeyID     string
	SecretAccessKey string
}

// S3Store はS3互換ストレージに画像を保存する。
type S3Store struct {
	client     *s3.Client
	uploader   *manager.Uploader
	bucket     string
	publicBase string
}

// NewS3Store は設定からS3クライアントを構築してS3Storeを生成する。
// Endpointが指定された場合はパス形式でアクセスする（MinIOなど）。
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	opts := []func(*awscfg.LoadOptions) error{awscfg.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsConfig, err := awscfg.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3StoreWithClient(client, cfg), nil
}

func newS3StoreWithClient(client *s3.Client, cfg S3Config) *S3Store {
	publicBase := strings.TrimRight(cfg.PublicBaseURL, "/")
	if publicBase == "" {
		publicBase = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}
	return &S3Store{
		client:     client,
		uploader:   manager.NewUploader(client),
		bucket:     cfg.Bucket,
		publicBase: publicBase,
	}
}

// Upload はJPEG画像をfolder配下に一意なキーで保存し、参照を返す。
func (s *S3Store) Upload(ctx context.Context, folder string, data []byte) (model.ImageRef, error) {
	key := folder + "/" + uuid.NewString() + ".jpg"

	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("image/jpeg"),
	})
	if err != nil {
		return model.ImageRef{}, fmt.Errorf("failed to upload image: %w", err)
	}

	return model.ImageRef{
		URL:      s.publicBase + "/" + (&url.URL{Path: key}).EscapedPath(),
		PublicID: key,
	}, nil
}

// Delete は指定PublicIDのオブジェクトを削除する。空のPublicIDは何もしない。
func (s *S3Store) Delete(ctx context.Context, publicID string) error {
	if publicID == "" {
		return nil
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(publicID),
	})
	if err != nil {
		return fmt.Errorf("failed to delete image: %w", err)
	}
	return nil
}

// DisabledStore はストレージ未設定時に使用する。アップロードは常に失敗する。
type DisabledStore struct{}

// Upload は常にErrNotConfiguredを返す。
func (DisabledStore) Upload(context.Context, string, []byte) (model.ImageRef, error) {
	return model.ImageRef{}, ErrNotConfigured
}

// Delete は何もしない。
func (DisabledStore) Delete(context.Context, string) error {
	return nil
}

// Store は画像オブジェクトの保存先。
type Store interface {
	Upload(ctx context.Context, folder string, data []byte) (model.ImageRef, error)
	Delete(ctx context.Context, publicID string) error
}

var (
	_ Store = (*S3Store)(nil)
	_ Store = DisabledStore{}
)
