package upload

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type S3Config struct {
	Region    string
	Bucket    string
	Directory string
}

var ErrEmptyS3BucketName = errors.New("empty S3 bucket name")

type s3Uploader struct {
	region    string
	bucket    string
	directory string
	service   *manager.Uploader
}

func NewS3Uploader(ctx context.Context, config S3Config) (Uploader, error) {
	if config.Bucket == "" {
		return nil, ErrEmptyS3BucketName
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(config.Region))
	if err != nil {
		return nil, err
	}

	service := s3.NewFromConfig(cfg)
	uploader := manager.NewUploader(service)

	return &s3Uploader{config.Region, config.Bucket, config.Directory, uploader}, nil
}

func (s *s3Uploader) Upload(ctx context.Context, key string, body io.Reader) (string, error) {
	// Prepend directory if it's not empty
	var uploadKey = key
	if s.directory != "" {
		uploadKey = fmt.Sprintf("%s/%s", s.directory, key)
	}

	_, err := s.service.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(uploadKey),
		Body:   body,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpload, err)
	}

	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, uploadKey), nil
}
