package storage

import (
	"context"

	"go.uber.org/zap"

	"github.com/ajitpratap0/boardlake/pkg/errors"
)

// Config carries store settings that are not part of the destination URI.
type Config struct {
	// Region for S3
	Region string
	// Endpoint overrides the S3 or GCS endpoint (S3-compatible stores, emulators)
	Endpoint string
}

// Open returns the store serving loc.Scheme.
func Open(ctx context.Context, loc Location, cfg Config, logger *zap.Logger) (ObjectStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch loc.Scheme {
	case SchemeS3:
		return NewS3Store(ctx, cfg, logger)
	case SchemeGCS:
		return NewGCSStore(ctx, cfg, logger)
	case SchemeFile:
		return NewFileStore(logger), nil
	case SchemeMemory:
		return NewMemoryStore(), nil
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unsupported destination scheme %q", loc.Scheme)
	}
}
