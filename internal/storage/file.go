package storage

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/boardlake/pkg/errors"
)

// FileStore writes objects to the local filesystem. Each put writes a hidden
// temp file in the target directory and renames it into place.
type FileStore struct {
	logger *zap.Logger
}

// NewFileStore creates a local filesystem store.
func NewFileStore(logger *zap.Logger) *FileStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{logger: logger.With(zap.String("component", "file_store"))}
}

// Scheme implements ObjectStore.
func (s *FileStore) Scheme() string { return SchemeFile }

// Put writes obj.Key (an absolute path) atomically. Bucket is ignored.
func (s *FileStore) Put(ctx context.Context, obj *Object) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeWrite, "write cancelled")
	}

	start := time.Now()
	target := filepath.FromSlash(obj.Key)
	dir := filepath.Dir(target)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, errors.ErrorTypeWrite, "failed to create destination directory").
			WithDetail("dir", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeWrite, "failed to create temp file").
			WithDetail("dir", dir)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(obj.Body); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, errors.ErrorTypeWrite, "failed to write temp file")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, errors.ErrorTypeWrite, "failed to sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeWrite, "failed to close temp file")
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return errors.Wrap(err, errors.ErrorTypeWrite, "failed to set file mode")
	}
	if err := os.Rename(tmpName, target); err != nil {
		return errors.Wrap(err, errors.ErrorTypeWrite, "failed to move file into place").
			WithDetail("path", target)
	}
	committed = true

	s.logger.Info("object written to filesystem",
		zap.String("path", target),
		zap.Int("bytes", len(obj.Body)),
		zap.Duration("duration", time.Since(start)))

	return nil
}

// Close implements ObjectStore.
func (s *FileStore) Close() error { return nil }
