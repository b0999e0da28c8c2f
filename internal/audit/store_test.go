package audit

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	ctx := context.Background()

	open := func(t *testing.T) *Store {
		t.Helper()
		s, err := Open(filepath.Join(t.TempDir(), "audit.db"))
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	}

	t.Run("open creates the parent directory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "deeper", "audit.db")
		s, err := Open(path)
		require.NoError(t, err)
		defer s.Close()

		_, err = os.Stat(filepath.Dir(path))
		assert.NoError(t, err)
	})

	t.Run("record and list round trip", func(t *testing.T) {
		s := open(t)

		started := time.Date(2024, 3, 15, 6, 0, 0, 0, time.UTC)
		e := Entry{
			RunID:        "20240315_060000_abc",
			BotName:      "acme",
			Status:       "succeeded",
			RowsExported: 42,
			ArtifactPath: "/data/out/report_20240315.csv",
			SHA256:       "deadbeef",
			StartedAt:    started,
			FinishedAt:   started.Add(90 * time.Second),
		}
		require.NoError(t, s.Record(ctx, e))

		entries, err := s.List(ctx, 10)
		require.NoError(t, err)
		require.Len(t, entries, 1)

		got := entries[0]
		assert.Equal(t, e.RunID, got.RunID)
		assert.Equal(t, e.BotName, got.BotName)
		assert.Equal(t, e.Status, got.Status)
		assert.Equal(t, e.RowsExported, got.RowsExported)
		assert.Equal(t, e.ArtifactPath, got.ArtifactPath)
		assert.Equal(t, e.SHA256, got.SHA256)
		assert.True(t, got.StartedAt.Equal(started))
	})

	t.Run("failed run keeps stage and error detail", func(t *testing.T) {
		s := open(t)

		now := time.Now().UTC()
		require.NoError(t, s.Record(ctx, Entry{
			RunID:       "20240315_070000_def",
			BotName:     "acme",
			Status:      "failed",
			Stage:       "acquire",
			ErrorKind:   "acquire",
			ErrorDetail: "download timed out after 2m0s",
			StartedAt:   now,
			FinishedAt:  now,
		}))

		entries, err := s.List(ctx, 1)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "acquire", entries[0].Stage)
		assert.Equal(t, "download timed out after 2m0s", entries[0].ErrorDetail)
		assert.Zero(t, entries[0].RowsExported)
	})

	t.Run("list returns newest first and honors the limit", func(t *testing.T) {
		s := open(t)

		base := time.Date(2024, 3, 15, 6, 0, 0, 0, time.UTC)
		for i := 0; i < 5; i++ {
			require.NoError(t, s.Record(ctx, Entry{
				RunID:      string(rune('a' + i)),
				BotName:    "acme",
				Status:     "succeeded",
				StartedAt:  base.Add(time.Duration(i) * time.Hour),
				FinishedAt: base.Add(time.Duration(i)*time.Hour + time.Minute),
			}))
		}

		entries, err := s.List(ctx, 3)
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, "e", entries[0].RunID)
		assert.Equal(t, "d", entries[1].RunID)
		assert.Equal(t, "c", entries[2].RunID)
	})

	t.Run("duplicate run id is rejected", func(t *testing.T) {
		s := open(t)

		now := time.Now().UTC()
		e := Entry{RunID: "dup", BotName: "acme", Status: "succeeded", StartedAt: now, FinishedAt: now}
		require.NoError(t, s.Record(ctx, e))
		assert.Error(t, s.Record(ctx, e))
	})
}
