package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 はPUT/DELETEされたキーを記録するS3互換エンドポイント。
type fakeS3 struct {
	mu      sync.Mutex
	puts    map[string]int
	deletes []string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, _ = io.Copy(io.Discard, r.Body)

	key := strings.TrimPrefix(r.URL.Path, "/test-bucket/")
	switch r.Method {
	case http.MethodPut:
		f.puts[key]++
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodDelete:
		f.deletes = append(f.deletes, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestStore(t *testing.T, publicBase string) (*S3Store, *fakeS3) {
	t.Helper()
	fake := &fakeS3{puts: map[string]int{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client := s3.New(s3.Options{
		Region:       "us-east-1",
		BaseEndpoint: aws.String(srv.URL),
		UsePathStyle: true,
		Credentials:  credentials.NewStaticCredentialsProvider("key", "secret", ""),
	})
	return newS3StoreWithClient(client, S3Config{
		Bucket:        "test-bucket",
		Region:        "us-east-1",
		PublicBaseURL: publicBase,
	}), fake
}

func TestS3Store_UploadReturnsReference(t *testing.T) {
	store, fake := newTestStore(t, "https://cdn.example.com/")

	ref, err := store.Upload(context.Background(), FolderProfileImage, []byte("jpeg-bytes"))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(ref.PublicID, "ProfileImage/"))
	assert.True(t, strings.HasSuffix(ref.PublicID, ".jpg"))
	assert.Equal(t, "https://cdn.example.com/"+ref.PublicID, ref.URL)
	assert.Equal(t, 1, fake.puts[ref.PublicID])
}

func TestS3Store_UploadKeysAreUnique(t *testing.T) {
	store, _ := newTestStore(t, "")

	a, err := store.Upload(context.Background(), FolderListing, []byte("a"))
	require.NoError(t, err)
	b, err := store.Upload(context.Background(), FolderListing, []byte("b"))
	require.NoError(t, err)

	assert.NotEqual(t, a.PublicID, b.PublicID)
	assert.True(t, strings.HasPrefix(a.URL, "https://test-bucket.s3.us-east-1.amazonaws.com/Listing/"))
}

func TestS3Store_Delete(t *testing.T) {
	store, fake := newTestStore(t, "")

	require.NoError(t, store.Delete(context.Background(), "categories/abc.jpg"))
	require.NoError(t, store.Delete(context.Background(), ""))

	assert.Equal(t, []string{"categories/abc.jpg"}, fake.deletes)
}

func TestDisabledStore(t *testing.T) {
	var store DisabledStore

	_, err := store.Upload(context.Background(), FolderListing, []byte("x"))
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.NoError(t, store.Delete(context.Background(), "x"))
}
