package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/ashwinyue/docqa/internal/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOStorage MinIO 对象存储
type MinIOStorage struct {
	client     *minio.Client
	bucketName string
}

// NewMinIOStorage 创建 MinIO 存储，bucket 不存在时创建
func NewMinIOStorage(ctx context.Context, cfg *config.MinIOConfig) (*MinIOStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MinIO client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &MinIOStorage{client: client, bucketName: cfg.BucketName}, nil
}

// Save 上传对象
func (s *MinIOStorage) Save(ctx context.Context, req *SaveRequest) (string, error) {
	key, err := objectKey(req.TenantID, req.Filename)
	if err != nil {
		return "", err
	}
	size := req.Size
	if size <= 0 {
		size = -1
	}
	_, err = s.client.PutObject(ctx, s.bucketName, key, req.Reader, size, minio.PutObjectOptions{
		ContentType: req.ContentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload file to MinIO: %w", err)
	}
	return key, nil
}

// Open 读取对象
func (s *MinIOStorage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	object, err := s.client.GetObject(ctx, s.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get file from MinIO: %w", err)
	}
	return object, nil
}

// Delete 删除对象
func (s *MinIOStorage) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucketName, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}
