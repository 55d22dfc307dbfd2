package infra

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appConfig "github.com/makeit-app/render-orchestrator/config"
)

// R2Client is the S3-compatible client for the Cloudflare R2 bucket holding the
// finished renders. The bucket is fronted by a public CDN domain, so object URLs
// are built from PublicBaseURL rather than presigned.
type R2Client struct {
	Client        *s3.Client
	RenderBucket  string
	PublicBaseURL string
}

func InitR2Client(cfg *appConfig.EnvConfig) *R2Client {
	endpoint := cfg.R2.AccountEndpoint
	if endpoint == "" {
		panic("R2 account endpoint is not configured")
	}

	if cfg.R2.AccessKey == "" || cfg.R2.SecretKey == "" {
		panic("R2 credentials are not configured")
	}

	if cfg.R2.PublicBaseURL == "" {
		panic("R2 public base URL is not configured")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion("auto"),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.R2.AccessKey, cfg.R2.SecretKey, ""),
		),
	)
	if err != nil {
		panic(fmt.Sprintf("Failed to load R2 client config: %v", err))
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	return &R2Client{
		Client:        client,
		RenderBucket:  cfg.R2.RenderBucket,
		PublicBaseURL: cfg.R2.PublicBaseURL,
	}
}

// UploadRender stores a compressed render and returns its public URL.
func (r *R2Client) UploadRender(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("object key cannot be empty")
	}
	if len(data) == 0 {
		return "", fmt.Errorf("render payload cannot be empty")
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(r.RenderBucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := r.Client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("failed to upload render: %w", err)
	}

	return fmt.Sprintf("%s/%s", r.PublicBaseURL, key), nil
}
