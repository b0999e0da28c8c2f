// Package local writes export artifacts to the local filesystem. Writes
// are all-or-nothing: content lands under a temporary name and is renamed
// into place only after verification, so a half-written file is never
// visible under the final name.
package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

type Option func(*Repository)

type Repository struct {
	basePath string
	logger   *zap.Logger
	verify   func(path string) error
}

func WithLogger(logger *zap.Logger) Option {
	return func(r *Repository) {
		r.logger = logger
	}
}

// WithVerify runs the given check against the temporary file before it is
// promoted. A verification failure leaves nothing under the final name.
func WithVerify(verify func(path string) error) Option {
	return func(r *Repository) {
		r.verify = verify
	}
}

func New(basePath string, opts ...Option) *Repository {
	r := &Repository{
		basePath: basePath,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Path returns the final location a key resolves to.
func (r *Repository) Path(key string) string {
	return filepath.Join(r.basePath, key)
}

func (r *Repository) Write(ctx context.Context, key string, reader io.Reader) error {
	finalPath := r.Path(key)

	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return err
	}

	// The temp file lives in the destination directory so the rename is
	// atomic on the same filesystem.
	tmp, err := os.CreateTemp(filepath.Dir(finalPath), ".tmp-"+filepath.Base(key)+"-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	if _, err := io.Copy(tmp, reader); err != nil {
		cleanup()
		return fmt.Errorf("write %s: %w", tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if r.verify != nil {
		if err := r.verify(tmpPath); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("verify %s: %w", key, err)
		}
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return err
	}

	r.logger.Info("artifact promoted", zap.String("path", finalPath))
	return nil
}

func (r *Repository) Flush() error {
	return nil
}
