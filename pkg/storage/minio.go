package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStorage MinIO 对象存储
type MinioStorage struct {
	client *minio.Client
	bucket string
	prefix string
}

// MinioConfig MinIO存储配置
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	Prefix    string // 对象名前缀，默认 uploads/
}

// NewMinioStorage 创建MinIO存储，存储桶不存在时自动创建
func NewMinioStorage(cfg MinioConfig) (*MinioStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check if bucket exists: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "uploads/"
	}
	return &MinioStorage{client: client, bucket: cfg.Bucket, prefix: prefix}, nil
}

func (s *MinioStorage) object(id string) (string, error) {
	if err := validID(id); err != nil {
		return "", err
	}
	return s.prefix + id, nil
}

// Save 流式上传，大小未知时交给 SDK 分片
func (s *MinioStorage) Save(ctx context.Context, r io.Reader, filename string) (FileInfo, error) {
	id := newID(filename)
	name, _ := s.object(id)
	contentType := MimeType(filename)

	info, err := s.client.PutObject(ctx, s.bucket, name, r, -1, minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: map[string]string{"filename": filename},
	})
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to upload file: %w", err)
	}
	return FileInfo{ID: id, Name: filename, Size: info.Size, MimeType: contentType}, nil
}

// Open 读取对象
func (s *MinioStorage) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	name, err := s.object(id)
	if err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	// GetObject 是惰性的，Stat 才能确认对象存在
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if isNoSuchKey(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to stat object: %w", err)
	}
	return obj, nil
}

// Delete 删除对象
func (s *MinioStorage) Delete(ctx context.Context, id string) error {
	name, err := s.object(id)
	if err != nil {
		return err
	}
	if err := s.client.RemoveObject(ctx, s.bucket, name, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// Exists 检查对象是否存在
func (s *MinioStorage) Exists(ctx context.Context, id string) (bool, error) {
	name, err := s.object(id)
	if err != nil {
		return false, err
	}
	if _, err := s.client.StatObject(ctx, s.bucket, name, minio.StatObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat object: %w", err)
	}
	return true, nil
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}
