package storage

import (
	"bytes"
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/ajitpratap0/boardlake/pkg/errors"
)

// singlePutPartSize keeps run artifacts below the multipart threshold so the
// uploader issues one PutObject. Larger payloads fall back to multipart, which
// only becomes visible on CompleteMultipartUpload.
const singlePutPartSize = 64 * 1024 * 1024

// S3Store puts objects into AWS S3 or an S3-compatible endpoint.
type S3Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	logger   *zap.Logger
}

// NewS3Store loads the default AWS credential chain for cfg.Region.
func NewS3Store(ctx context.Context, cfg Config, logger *zap.Logger) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to load AWS configuration")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3StoreFromClient(client, logger), nil
}

// NewS3StoreFromClient wraps an existing client.
func NewS3StoreFromClient(client *s3.Client, logger *zap.Logger) *S3Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &S3Store{
		client: client,
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.PartSize = singlePutPartSize
			u.Concurrency = 1
		}),
		logger: logger.With(zap.String("component", "s3_store")),
	}
}

// Scheme implements ObjectStore.
func (s *S3Store) Scheme() string { return SchemeS3 }

// Put uploads obj in one request.
func (s *S3Store) Put(ctx context.Context, obj *Object) error {
	start := time.Now()

	result, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(obj.Bucket),
		Key:         aws.String(obj.Key),
		Body:        bytes.NewReader(obj.Body),
		ContentType: aws.String(obj.ContentType),
		Metadata:    obj.Metadata,
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeWrite, "failed to upload to S3").
			WithDetail("bucket", obj.Bucket).
			WithDetail("key", obj.Key)
	}

	s.logger.Info("object uploaded to S3",
		zap.String("location", result.Location),
		zap.Int("bytes", len(obj.Body)),
		zap.Duration("duration", time.Since(start)))

	return nil
}

// Close implements ObjectStore.
func (s *S3Store) Close() error { return nil }
