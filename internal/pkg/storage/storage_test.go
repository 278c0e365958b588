package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/iris_server/config"
)

func TestObjectKey(t *testing.T) {
	key := ObjectKey("chat-images", 42, "image/png")

	assert.True(t, strings.HasPrefix(key, "chat-images/42/"))
	assert.True(t, strings.HasSuffix(key, ".png"))
	assert.NotEqual(t, key, ObjectKey("chat-images", 42, "image/png"))
}

func TestIsImageType(t *testing.T) {
	assert.True(t, IsImageType("image/jpeg"))
	assert.True(t, IsImageType("image/webp"))
	assert.False(t, IsImageType("application/pdf"))
	assert.False(t, IsImageType(""))
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New(context.Background(), &config.StorageConfig{Provider: "ftp"})
	assert.Error(t, err)
}

func TestOSSStore_URL(t *testing.T) {
	store, err := NewOSSStore(&config.OSSConfig{
		Endpoint:        "oss-cn-hangzhou.aliyuncs.com",
		AccessKeyID:     "ak",
		AccessKeySecret: "sk",
		BucketName:      "iris",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://iris.oss-cn-hangzhou.aliyuncs.com/avatars/1/a.png", store.URL("avatars/1/a.png"))

	store.cdnDomain = "cdn.example.com"
	assert.Equal(t, "https://cdn.example.com/avatars/1/a.png", store.URL("avatars/1/a.png"))
}

func TestS3Store_PutAndDelete(t *testing.T) {
	var mu sync.Mutex
	objects := map[string][]byte{}
	var contentType string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()

		switch r.Method {
		case http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			objects[r.URL.Path] = body
			contentType = r.Header.Get("Content-Type")
			w.Header().Set("ETag", `"etag"`)
			w.WriteHeader(http.StatusOK)
		case http.MethodDelete:
			delete(objects, r.URL.Path)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	defer server.Close()

	ctx := context.Background()
	store, err := NewS3Store(ctx, &config.S3Config{
		Region:          "us-east-1",
		Bucket:          "iris",
		AccessKeyID:     "ak",
		SecretAccessKey: "sk",
		Endpoint:        server.URL,
		PublicURL:       "https://files.example.com/",
	})
	require.NoError(t, err)

	url, err := store.Put(ctx, "chat-images/1/x.png", []byte("png-bytes"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "https://files.example.com/chat-images/1/x.png", url)

	mu.Lock()
	assert.Equal(t, "image/png", contentType)
	_, ok := objects["/iris/chat-images/1/x.png"]
	mu.Unlock()
	assert.True(t, ok, "path-style key should be written")

	require.NoError(t, store.Delete(ctx, "chat-images/1/x.png"))
	mu.Lock()
	assert.Empty(t, objects)
	mu.Unlock()
}
