package portal

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const pollInterval = 500 * time.Millisecond

// WaitForArtifact blocks until a file with the given suffix appears in dir
// and its size is stable across one poll interval, or the timeout elapses.
// Browsers write partial downloads under temporary names (.crdownload,
// .part), so a matching name alone is not enough to call the download done.
//
// fsnotify wakes the wait early; a poll ticker backs it up for filesystems
// that drop events.
func WaitForArtifact(ctx context.Context, logger *zap.Logger, dir, suffix string, timeout time.Duration) (string, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		defer watcher.Close()
		if werr := watcher.Add(dir); werr != nil {
			logger.Warn("watch download dir, falling back to polling", zap.Error(werr))
		}
	} else {
		logger.Warn("fsnotify unavailable, falling back to polling", zap.Error(err))
		watcher = nil
	}

	var events chan fsnotify.Event
	if watcher != nil {
		events = watcher.Events
	}

	var candidate string
	var candidateSize int64

	check := func() (string, bool) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return "", false
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			name := entry.Name()
			if !strings.HasSuffix(name, suffix) || isPartialDownload(name) {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			path := filepath.Join(dir, name)
			if path == candidate && info.Size() == candidateSize && info.Size() > 0 {
				return path, true
			}
			candidate = path
			candidateSize = info.Size()
		}
		return "", false
	}

	for {
		select {
		case <-ctx.Done():
			return "", &AcquireError{Reason: AcquireDownloadTimeout, Err: ctx.Err()}
		case <-deadline.C:
			return "", &AcquireError{Reason: AcquireDownloadTimeout}
		case <-events:
		case <-ticker.C:
		}

		if path, ok := check(); ok {
			logger.Debug("artifact arrived", zap.String("path", path))
			return path, nil
		}
	}
}

func isPartialDownload(name string) bool {
	for _, ext := range []string{".crdownload", ".part", ".tmp", ".download"} {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}
