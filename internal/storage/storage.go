// Package storage hands out presigned URLs for measurement photos.
package storage

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsCfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"studio-booking-api/internal/apperr"
)

const DefaultExpiry = 15 * time.Minute

// Photos is what the measurement endpoints need from object storage.
type Photos interface {
	UploadURL(ctx context.Context, key, contentType string) (string, error)
	DownloadURL(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

type Config struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Expiry          time.Duration
}

func (c Config) Enabled() bool { return c.Bucket != "" }

type S3 struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	expiry  time.Duration
}

func NewS3(ctx context.Context, cfg Config) (*S3, error) {
	opts := []func(*awsCfg.LoadOptions) error{awsCfg.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsCfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsConf, err := awsCfg.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsConf, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			// MinIO and friends need path-style addressing
			o.UsePathStyle = true
		}
	})
	expiry := cfg.Expiry
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	log.Printf("storage: s3 bucket %s ready", cfg.Bucket)
	return &S3{client: client, presign: s3.NewPresignClient(client), bucket: cfg.Bucket, expiry: expiry}, nil
}

func (s *S3) UploadURL(ctx context.Context, key, contentType string) (string, error) {
	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(s.expiry))
	if err != nil {
		return "", fmt.Errorf("storage: presign put %s: %w", key, err)
	}
	return req.URL, nil
}

func (s *S3) DownloadURL(ctx context.Context, key string) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.expiry))
	if err != nil {
		return "", fmt.Errorf("storage: presign get %s: %w", key, err)
	}
	return req.URL, nil
}

func (s *S3) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("storage: delete %s: %w", key, err)
	}
	return nil
}

// Disabled answers every call with ErrUnavailable.
type Disabled struct{}

func (Disabled) UploadURL(context.Context, string, string) (string, error) {
	return "", apperr.New(apperr.ErrUnavailable, "photo storage is not configured")
}

func (Disabled) DownloadURL(context.Context, string) (string, error) {
	return "", apperr.New(apperr.ErrUnavailable, "photo storage is not configured")
}

func (Disabled) Delete(context.Context, string) error { return nil }

var allowedTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
	"image/heic": "heic",
}

// PhotoKey builds the object key for a measurement photo, rejecting
// content types that are not images.
func PhotoKey(userID, measurementID, contentType string) (string, error) {
	ext, ok := allowedTypes[strings.ToLower(strings.TrimSpace(contentType))]
	if !ok {
		return "", apperr.Validation("unsupported content type %q", contentType)
	}
	return fmt.Sprintf("measurements/%s/%s.%s", userID, measurementID, ext), nil
}
