package infra

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/makeit-app/render-orchestrator/config"
)

// MinioClient stores the room photos users upload before a design prediction is
// created. Finished renders go to R2, not here.
type MinioClient struct {
	Client      *minio.Client
	Endpoint    string
	InputBucket string
	UseSSL      bool
}

func InitMinioClient(cfg *config.EnvConfig) *MinioClient {
	endpoint := cfg.Minio.Endpoint
	if endpoint == "" {
		panic("MinIO endpoint is not configured")
	}

	accessKey := cfg.Minio.AccessKey
	if accessKey == "" {
		panic("MinIO access key is not configured")
	}

	secretKey := cfg.Minio.SecretKey
	if secretKey == "" {
		panic("MinIO secret key is not configured")
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: cfg.Minio.UseSSL,
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize MinIO client: %v", err))
	}

	m := &MinioClient{
		Client:      client,
		Endpoint:    endpoint,
		InputBucket: cfg.Minio.InputBucket,
		UseSSL:      cfg.Minio.UseSSL,
	}

	if err := m.EnsureBucket(context.Background(), m.InputBucket); err != nil {
		panic(fmt.Sprintf("Failed to ensure input bucket: %v", err))
	}

	return m
}

// EnsureBucket creates the bucket if it doesn't exist
func (m *MinioClient) EnsureBucket(ctx context.Context, bucketName string) error {
	if bucketName == "" {
		return fmt.Errorf("bucketName cannot be empty")
	}

	exists, err := m.Client.BucketExists(ctx, bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		err = m.Client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return nil
}

// UploadSourceImage stores an uploaded room photo and returns a URL the
// inference provider can fetch it from.
func (m *MinioClient) UploadSourceImage(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("object key cannot be empty")
	}
	if len(data) == 0 {
		return "", fmt.Errorf("image payload cannot be empty")
	}

	_, err := m.Client.PutObject(ctx, m.InputBucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload source image: %w", err)
	}

	scheme := "http"
	if m.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, m.Endpoint, m.InputBucket, key), nil
}
