package runlog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	t.Run("creates one file per run", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "logs")

		h, err := Open(dir, "20240101_120000_abc", "info")
		require.NoError(t, err)
		defer h.Close()

		h.Logger().Info("hello")
		require.NoError(t, h.Close())

		bs, err := os.ReadFile(h.Path())
		require.NoError(t, err)
		assert.Contains(t, string(bs), "hello")
		assert.Contains(t, string(bs), "20240101_120000_abc")
	})

	t.Run("never overwrites an existing run log", func(t *testing.T) {
		dir := t.TempDir()

		h, err := Open(dir, "dup", "info")
		require.NoError(t, err)
		defer h.Close()

		_, err = Open(dir, "dup", "info")
		assert.Error(t, err)
	})

	t.Run("bad level falls back to info", func(t *testing.T) {
		h, err := Open(t.TempDir(), "lvl", "chatty")
		require.NoError(t, err)
		defer h.Close()

		h.Logger().Debug("invisible")
		h.Logger().Info("visible")
		require.NoError(t, h.Close())

		bs, err := os.ReadFile(h.Path())
		require.NoError(t, err)
		assert.NotContains(t, string(bs), "invisible")
		assert.Contains(t, string(bs), "visible")
	})
}
