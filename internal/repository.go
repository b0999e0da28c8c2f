package internal

import (
	"context"
	"io"
)

// Repository is a destination for export artifacts.
type Repository interface {
	Write(ctx context.Context, key string, reader io.Reader) error
	Flush() error
}
