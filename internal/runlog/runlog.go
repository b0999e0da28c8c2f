// Package runlog owns the per-run log destination: one file per run under
// the logs directory, mirrored to the console. The handle is opened once at
// process start and closed on every exit path.
package runlog

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Handle is a run-scoped log sink. All components log through its Logger;
// Close flushes the file before the process exits.
type Handle struct {
	logger *zap.Logger
	file   *os.File
	path   string
}

// Open creates the logs directory if absent and opens the run's log file.
// An existing file for the same run id is an error rather than an
// overwrite.
func Open(dir, runID, level string) (*Handle, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create logs dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("run_%s.log", runID))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	fileEnc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	consoleEnc := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())

	core := zapcore.NewTee(
		zapcore.NewCore(fileEnc, zapcore.AddSync(f), lvl),
		zapcore.NewCore(consoleEnc, zapcore.Lock(os.Stderr), lvl),
	)

	logger := zap.New(core).With(zap.String("run_id", runID))

	return &Handle{
		logger: logger,
		file:   f,
		path:   path,
	}, nil
}

func (h *Handle) Logger() *zap.Logger {
	return h.logger
}

// Path returns the location of the run's log file.
func (h *Handle) Path() string {
	return h.path
}

// Close syncs the logger and closes the underlying file.
func (h *Handle) Close() error {
	// Sync on stderr returns an error on some platforms; the file close is
	// what matters here.
	_ = h.logger.Sync()
	return h.file.Close()
}
