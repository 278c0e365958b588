package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/qs3c/iris_server/config"
)

// ObjectStore 对象存储，返回可公开访问的 URL
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
}

// New 按 provider 创建对象存储
func New(ctx context.Context, cfg *config.StorageConfig) (ObjectStore, error) {
	switch cfg.Provider {
	case "oss", "":
		return NewOSSStore(&cfg.OSS)
	case "s3":
		return NewS3Store(ctx, &cfg.S3)
	default:
		return nil, fmt.Errorf("unknown storage provider %q", cfg.Provider)
	}
}

// ObjectKey 生成 <prefix>/<userID>/<uuid><ext> 形式的对象键
func ObjectKey(prefix string, userID int64, contentType string) string {
	return fmt.Sprintf("%s/%d/%s%s", prefix, userID, uuid.NewString(), ExtForContentType(contentType))
}

// ExtForContentType 根据 Content-Type 获取扩展名
func ExtForContentType(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ""
	}
}

// IsImageType 允许上传的图片类型
func IsImageType(contentType string) bool {
	return ExtForContentType(contentType) != ""
}
