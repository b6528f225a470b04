// Package storage keeps the original uploaded files until ingestion has read
// them and the document is deleted.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ashwinyue/docqa/internal/config"
	"github.com/google/uuid"
)

// ErrInvalidPath 存储路径越界或为空
var ErrInvalidPath = errors.New("invalid storage path")

// Storage 文件存储接口
type Storage interface {
	// Save stores the content and returns the storage key.
	Save(ctx context.Context, req *SaveRequest) (string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// SaveRequest 保存文件请求
type SaveRequest struct {
	TenantID    string
	Filename    string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// New 按 storage.type 创建存储
func New(ctx context.Context, cfg *config.StorageConfig) (Storage, error) {
	switch cfg.Type {
	case "local", "":
		return NewLocalStorage(cfg.LocalPath)
	case "minio":
		return NewMinIOStorage(ctx, &cfg.MinIO)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// objectKey {tenant}/{uuid}{ext}
func objectKey(tenantID, filename string) (string, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" || strings.ContainsAny(tenantID, `/\`) || tenantID == ".." {
		return "", fmt.Errorf("%w: tenant %q", ErrInvalidPath, tenantID)
	}
	ext := strings.ToLower(filepath.Ext(filename))
	return tenantID + "/" + uuid.New().String() + ext, nil
}
