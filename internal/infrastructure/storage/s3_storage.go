// Package storage archives shipping label PDFs in S3-compatible object
// storage. Carrier label URLs expire; the copy kept here is the durable one
// the warehouse reprints from.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	infraconfig "github.com/oms/backend/internal/infrastructure/config"
)

const labelContentType = "application/pdf"

// S3LabelStore stores shipping labels in any S3-compatible backend
// (AWS S3, MinIO, RustFS).
type S3LabelStore struct {
	client            *s3.Client
	presignClient     *s3.PresignClient
	bucket            string
	presignExpiration time.Duration
	logger            *zap.Logger
}

// S3LabelStoreOption is a functional option for configuring S3LabelStore
type S3LabelStoreOption func(*S3LabelStore)

// WithLogger sets a custom logger for S3LabelStore
func WithLogger(logger *zap.Logger) S3LabelStoreOption {
	return func(s *S3LabelStore) {
		s.logger = logger
	}
}

// WithPresignExpiration sets a custom presign expiration duration
func WithPresignExpiration(d time.Duration) S3LabelStoreOption {
	return func(s *S3LabelStore) {
		s.presignExpiration = d
	}
}

// NewS3LabelStore creates a new S3LabelStore from configuration.
func NewS3LabelStore(cfg *infraconfig.StorageConfig, opts ...S3LabelStoreOption) (*S3LabelStore, error) {
	if cfg == nil {
		return nil, errors.New("storage configuration is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}
	if cfg.AccessKey == "" {
		return nil, errors.New("storage access key is required")
	}
	if cfg.SecretKey == "" {
		return nil, errors.New("storage secret key is required")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "http://localhost:9000" // MinIO default
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		if cfg.UseSSL {
			endpoint = "https://" + endpoint
		} else {
			endpoint = "http://" + endpoint
		}
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("invalid storage endpoint: %w", err)
	}

	region := cfg.Region
	if region == "" {
		region = "ap-south-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		o.BaseEndpoint = aws.String(endpoint)
	})

	store := &S3LabelStore{
		client:            client,
		presignClient:     s3.NewPresignClient(client),
		bucket:            cfg.Bucket,
		presignExpiration: cfg.PresignExpiration,
		logger:            zap.NewNop(),
	}
	for _, opt := range opts {
		opt(store)
	}
	if store.presignExpiration == 0 {
		store.presignExpiration = 15 * time.Minute
	}
	return store, nil
}

// labelKey maps an AWB onto its object key. One label per AWB; rebooking
// the same AWB overwrites.
func labelKey(awb string) string {
	return "labels/" + awb + ".pdf"
}

// EnsureBucket creates the bucket if it doesn't exist.
// Call this during application startup.
func (s *S3LabelStore) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	s.logger.Info("creating label bucket", zap.String("bucket", s.bucket))
	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		// Ignore "BucketAlreadyOwnedByYou" (startup race between replicas)
		var alreadyOwned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &alreadyOwned) {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// StoreLabel uploads a label PDF for the given AWB and returns its object key.
func (s *S3LabelStore) StoreLabel(ctx context.Context, awb string, pdf []byte) (string, error) {
	if awb == "" {
		return "", errors.New("awb is required")
	}
	if len(pdf) == 0 {
		return "", errors.New("label content is empty")
	}

	key := labelKey(awb)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(pdf),
		ContentType: aws.String(labelContentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to store label: %w", err)
	}

	s.logger.Debug("stored label", zap.String("awb", awb), zap.Int("bytes", len(pdf)))
	return key, nil
}

// LabelURL returns a presigned download URL for an AWB's stored label.
func (s *S3LabelStore) LabelURL(ctx context.Context, awb string, expiresIn time.Duration) (string, time.Time, error) {
	if awb == "" {
		return "", time.Time{}, errors.New("awb is required")
	}
	if expiresIn <= 0 {
		expiresIn = s.presignExpiration
	}

	presignReq, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(labelKey(awb)),
	}, s3.WithPresignExpires(expiresIn))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to presign label URL: %w", err)
	}

	return presignReq.URL, time.Now().Add(expiresIn), nil
}

// HasLabel reports whether a label is archived for the AWB.
func (s *S3LabelStore) HasLabel(ctx context.Context, awb string) (bool, error) {
	if awb == "" {
		return false, errors.New("awb is required")
	}

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(labelKey(awb)),
	})
	if err != nil {
		var notFound *types.NotFound
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
			return false, nil
		}
		// Some S3-compatible services report the miss differently
		if strings.Contains(err.Error(), "NotFound") || strings.Contains(err.Error(), "NoSuchKey") {
			return false, nil
		}
		return false, fmt.Errorf("failed to check label existence: %w", err)
	}
	return true, nil
}

// DeleteLabel removes an archived label, typically after cancellation.
func (s *S3LabelStore) DeleteLabel(ctx context.Context, awb string) error {
	if awb == "" {
		return errors.New("awb is required")
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(labelKey(awb)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete label: %w", err)
	}
	return nil
}

// Bucket returns the bucket name
func (s *S3LabelStore) Bucket() string {
	return s.bucket
}
