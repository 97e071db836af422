package objectstore

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

type s3Store struct {
	client *s3.Client
	bucket string
	logger *zap.Logger
}

// NewS3Store wraps an S3 client constructed once at startup.
func NewS3Store(client *s3.Client, bucket string, logger *zap.Logger) ObjectStore {
	return &s3Store{
		client: client,
		bucket: bucket,
		logger: logger,
	}
}

func (s *s3Store) Put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", key, err)
	}
	s.logger.Debug("Object written", zap.String("bucket", s.bucket), zap.String("key", key))
	return nil
}
