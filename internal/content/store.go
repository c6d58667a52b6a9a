// Package content provides the locator adapter for the external
// S3-compatible content store. Genomic file bytes never pass through the
// core; this adapter only confirms an object exists for a registered hash
// and issues short-lived download URLs.
package content

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Store wraps an S3-compatible bucket holding content-addressed genomic
// files. Objects are keyed by content hash, so the locator doubles as an
// integrity statement.
type Store struct {
	s3Client      *s3.Client
	presignClient *s3.PresignClient
	bucketName    string
	urlExpiry     time.Duration
}

// StoreConfig holds configuration for the content store adapter.
type StoreConfig struct {
	BucketName       string
	AccessKeyID      string
	SecretAccessKey  string
	Endpoint         string
	URLExpiryMinutes int // Default: 15 minutes
}

// NewStore creates a content store adapter with the given configuration.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.BucketName == "" {
		return nil, errors.New("bucket name is required")
	}
	if cfg.AccessKeyID == "" {
		return nil, errors.New("access key ID is required")
	}
	if cfg.SecretAccessKey == "" {
		return nil, errors.New("secret access key is required")
	}
	if cfg.Endpoint == "" {
		return nil, errors.New("endpoint is required")
	}
	if cfg.URLExpiryMinutes <= 0 {
		cfg.URLExpiryMinutes = 15
	}

	s3Client := s3.New(s3.Options{
		Region: "auto",
		Credentials: aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
		BaseEndpoint: aws.String(cfg.Endpoint),
		UsePathStyle: true, // MinIO and R2 require path-style addressing
	})

	return &Store{
		s3Client:      s3Client,
		presignClient: s3.NewPresignClient(s3Client),
		bucketName:    cfg.BucketName,
		urlExpiry:     time.Duration(cfg.URLExpiryMinutes) * time.Minute,
	}, nil
}

// ObjectKey builds the content-addressed key for a hash and file kind.
func ObjectKey(contentHash, fileKind string) string {
	return fmt.Sprintf("records/%s.%s", contentHash, fileKind)
}

// Resolve confirms the object for the hash exists in the bucket and returns
// its stable locator. Registration fails when the bytes were never uploaded.
func (s *Store) Resolve(ctx context.Context, contentHash, fileKind string) (string, error) {
	key := ObjectKey(contentHash, fileKind)
	_, err := s.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("content object %s not available: %w", key, err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucketName, key), nil
}

// PresignDownload issues a short-lived GET URL for a registered object.
func (s *Store) PresignDownload(ctx context.Context, contentHash, fileKind string) (string, time.Time, error) {
	key := ObjectKey(contentHash, fileKind)
	presigned, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.urlExpiry))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to presign download for %s: %w", key, err)
	}
	return presigned.URL, time.Now().Add(s.urlExpiry), nil
}

// PresignUpload issues a short-lived PUT URL so a lab can push the file
// bytes directly to the store before registering the record.
func (s *Store) PresignUpload(ctx context.Context, contentHash, fileKind string) (string, time.Time, error) {
	key := ObjectKey(contentHash, fileKind)
	presigned, err := s.presignClient.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.urlExpiry))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to presign upload for %s: %w", key, err)
	}
	return presigned.URL, time.Now().Add(s.urlExpiry), nil
}
