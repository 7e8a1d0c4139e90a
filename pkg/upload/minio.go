package upload

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Secure    bool
}

type minioUploader struct {
	client *minio.Client
	config MinioConfig
}

// NewMinioUploader targets a self-hosted MinIO (or any S3-compatible)
// deployment.
func NewMinioUploader(config MinioConfig) (Uploader, error) {
	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: config.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot create minio client: %w", err)
	}
	return &minioUploader{client: client, config: config}, nil
}

func (m *minioUploader) Upload(ctx context.Context, key string, body io.Reader) (string, error) {
	_, err := m.client.PutObject(ctx, m.config.Bucket, key, body, -1, minio.PutObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpload, err)
	}

	scheme := "http"
	if m.config.Secure {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, m.config.Endpoint, m.config.Bucket, key), nil
}
