package file

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// SaveRequest 保存文件请求
type SaveRequest struct {
	TenantID string
	FileName string
	Reader   io.Reader
}

// Storage 文件存储接口
type Storage interface {
	Save(ctx context.Context, req *SaveRequest) (string, error)
	Get(ctx context.Context, filePath string) (io.ReadCloser, error)
	Delete(ctx context.Context, filePath string) error
	FullPath(filePath string) string
}

// LocalStorage 本地文件存储，按租户分目录
type LocalStorage struct {
	basePath string
}

var _ Storage = (*LocalStorage)(nil)

// NewLocalStorage 创建本地存储服务
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	// 确保基础路径存在
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

// Save 保存文件到本地
// 文件路径: {basePath}/{tenantID}/{uuid}{ext}，返回相对路径
func (s *LocalStorage) Save(ctx context.Context, req *SaveRequest) (string, error) {
	ext := filepath.Ext(req.FileName)
	fileID := uuid.New().String()
	relativePath := fmt.Sprintf("%s/%s%s", req.TenantID, fileID, ext)
	fullPath := filepath.Join(s.basePath, relativePath)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, req.Reader); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	return relativePath, nil
}

// Get 获取文件内容
func (s *LocalStorage) Get(ctx context.Context, filePath string) (io.ReadCloser, error) {
	file, err := os.Open(filepath.Join(s.basePath, filePath))
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

// Delete 删除文件，文件不存在视为成功
func (s *LocalStorage) Delete(ctx context.Context, filePath string) error {
	if err := os.Remove(filepath.Join(s.basePath, filePath)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// FullPath 返回文件的绝对路径
func (s *LocalStorage) FullPath(filePath string) string {
	return filepath.Join(s.basePath, filePath)
}
