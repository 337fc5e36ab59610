package storage

import (
	"context"
	"fmt"
	"time"

	"docportal/pkg/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Presigner 基于 S3 兼容存储（AWS / MinIO）的预签名
type S3Presigner struct {
	bucket  string
	presign *s3.PresignClient
	now     func() time.Time
}

func NewS3Presigner(ctx context.Context, cfg config.StorageConfig) (*S3Presigner, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("storage bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &S3Presigner{
		bucket:  cfg.Bucket,
		presign: s3.NewPresignClient(client),
		now:     time.Now,
	}, nil
}

func (p *S3Presigner) PresignPut(ctx context.Context, key string, ttl time.Duration) (SignedURL, error) {
	req, err := p.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return SignedURL{}, fmt.Errorf("failed to presign put %s: %w", key, err)
	}
	return SignedURL{
		URL:       req.URL,
		Method:    req.Method,
		Headers:   flattenHeaders(req.SignedHeader),
		ExpiresAt: p.now().Add(ttl),
	}, nil
}

func (p *S3Presigner) PresignGet(ctx context.Context, key string, ttl time.Duration) (SignedURL, error) {
	req, err := p.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return SignedURL{}, fmt.Errorf("failed to presign get %s: %w", key, err)
	}
	return SignedURL{
		URL:       req.URL,
		Method:    req.Method,
		ExpiresAt: p.now().Add(ttl),
	}, nil
}

// flattenHeaders 只保留客户端上传时必须带上的签名头（host 由 HTTP 客户端自动设置）
func flattenHeaders(h map[string][]string) map[string]string {
	out := map[string]string{}
	for k, v := range h {
		if len(v) == 0 || k == "Host" || k == "host" {
			continue
		}
		out[k] = v[0]
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
