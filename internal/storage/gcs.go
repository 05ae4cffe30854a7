package storage

import (
	"bytes"
	"context"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/ajitpratap0/boardlake/pkg/errors"
)

// GCSStore puts objects into Google Cloud Storage. An object only becomes
// visible when its writer is closed successfully.
type GCSStore struct {
	client *storage.Client
	logger *zap.Logger
}

// NewGCSStore uses application default credentials, or no authentication when
// cfg.Endpoint points at an emulator.
func NewGCSStore(ctx context.Context, cfg Config, logger *zap.Logger) (*GCSStore, error) {
	var opts []option.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create GCS client")
	}

	return NewGCSStoreFromClient(client, logger), nil
}

// NewGCSStoreFromClient wraps an existing client.
func NewGCSStoreFromClient(client *storage.Client, logger *zap.Logger) *GCSStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GCSStore{
		client: client,
		logger: logger.With(zap.String("component", "gcs_store")),
	}
}

// Scheme implements ObjectStore.
func (s *GCSStore) Scheme() string { return SchemeGCS }

// Put writes obj in a single upload.
func (s *GCSStore) Put(ctx context.Context, obj *Object) error {
	start := time.Now()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := s.client.Bucket(obj.Bucket).Object(obj.Key).NewWriter(ctx)
	w.ContentType = obj.ContentType
	w.Metadata = obj.Metadata
	// one chunk means one request for typical payloads
	w.ChunkSize = 0

	if _, err := io.Copy(w, bytes.NewReader(obj.Body)); err != nil {
		// cancelling before Close aborts the upload
		cancel()
		_ = w.Close()
		return errors.Wrap(err, errors.ErrorTypeWrite, "failed to write to GCS").
			WithDetail("bucket", obj.Bucket).
			WithDetail("key", obj.Key)
	}

	if err := w.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeWrite, "failed to commit GCS object").
			WithDetail("bucket", obj.Bucket).
			WithDetail("key", obj.Key)
	}

	s.logger.Info("object uploaded to GCS",
		zap.String("object", obj.Bucket+"/"+obj.Key),
		zap.Int("bytes", len(obj.Body)),
		zap.Duration("duration", time.Since(start)))

	return nil
}

// Close releases the client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
