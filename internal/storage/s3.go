package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"github.com/jo-hoe/videogreeter/internal/config"
)

var _ ArtifactStore = (*S3Store)(nil)

// S3Store keeps artifacts in an S3 bucket. Objects must be publicly readable
// (bucket policy) for the lip-sync provider to fetch them.
type S3Store struct {
	svc     s3iface.S3API
	bucket  string
	prefix  string
	baseURL string
}

// NewS3Store creates an S3 store using the default AWS credential chain.
func NewS3Store(cfg config.S3Settings) (*S3Store, error) {
	awsCfg := aws.NewConfig().WithRegion(cfg.Region)
	if cfg.Endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(cfg.Endpoint).WithS3ForcePathStyle(true)
	}
	sess, err := session.NewSessionWithOptions(session.Options{
		Config:            *awsCfg,
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}
	return NewS3StoreWithClient(s3.New(sess), cfg), nil
}

// NewS3StoreWithClient wraps an existing S3 client.
func NewS3StoreWithClient(svc s3iface.S3API, cfg config.S3Settings) *S3Store {
	return &S3Store{
		svc:     svc,
		bucket:  cfg.Bucket,
		prefix:  cfg.Prefix,
		baseURL: objectBaseURL(cfg),
	}
}

func (s *S3Store) Store(ctx context.Context, key, contentType string, data []byte) (string, error) {
	name, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	objectKey := s.prefix + name
	_, err = s.svc.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(objectKey),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put s3 object %s: %w", objectKey, err)
	}
	return s.baseURL + objectKey, nil
}

func (s *S3Store) Delete(ctx context.Context, rawURL string) error {
	if !strings.HasPrefix(rawURL, s.baseURL) {
		return fmt.Errorf("%w: %s", ErrForeignURL, rawURL)
	}
	objectKey := strings.TrimPrefix(rawURL, s.baseURL)
	_, err := s.svc.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return fmt.Errorf("delete s3 object %s: %w", objectKey, err)
	}
	return nil
}

// objectBaseURL is the public URL prefix objects are addressed under.
func objectBaseURL(cfg config.S3Settings) string {
	if cfg.Endpoint != "" {
		return strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket + "/"
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/", cfg.Bucket, cfg.Region)
}
