package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage 本地磁盘存储
type LocalStorage struct {
	basePath string
}

// NewLocalStorage 创建本地存储，目录不存在时创建
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if basePath == "" {
		basePath = "./data/uploads"
	}
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base directory: %w", err)
	}
	return &LocalStorage{basePath: abs}, nil
}

// Save 保存文件
func (s *LocalStorage) Save(ctx context.Context, req *SaveRequest) (string, error) {
	key, err := objectKey(req.TenantID, req.Filename)
	if err != nil {
		return "", err
	}
	fullPath, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	f, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := io.Copy(f, req.Reader); err != nil {
		f.Close()
		os.Remove(fullPath)
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close file: %w", err)
	}
	return key, nil
}

// Open 打开文件
func (s *LocalStorage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	fullPath, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return f, nil
}

// Delete 删除文件，不存在时忽略
func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	fullPath, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func (s *LocalStorage) resolve(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", ErrInvalidPath
	}
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(key))
	if !strings.HasPrefix(fullPath, s.basePath+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, key)
	}
	return fullPath, nil
}
