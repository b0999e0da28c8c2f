package export

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpakit/reportbot/internal"
)

func sampleTable(t *testing.T) *internal.Table {
	t.Helper()
	cols := []string{"report_date", "client_id", "net_amount", "is_income"}
	table := internal.NewTable(cols)
	require.NoError(t, table.Append(internal.NewRecord(cols, []any{"2024-03-15", "101", 200.5, true})))
	require.NoError(t, table.Append(internal.NewRecord(cols, []any{"2024-03-15", "102", -50.0, false})))
	return table
}

func TestExport(t *testing.T) {
	ctx := context.Background()

	t.Run("writes csv under run-scoped name", func(t *testing.T) {
		dir := t.TempDir()
		e := New(dir, "csv", "report")

		artifact, err := e.Export(ctx, sampleTable(t), "run1")
		require.NoError(t, err)

		assert.Equal(t, filepath.Join(dir, "report_run1.csv"), artifact.Path)
		assert.Equal(t, 2, artifact.Rows)
		assert.Greater(t, artifact.Size, int64(0))

		bs, err := os.ReadFile(artifact.Path)
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(string(bs)), "\n")
		require.Len(t, lines, 3)
		assert.Equal(t, `"report_date";"client_id";"net_amount";"is_income"`, lines[0])
		assert.Equal(t, `"2024-03-15";"101";"200.5";"true"`, lines[1])

		sum := sha256.Sum256(bs)
		assert.Equal(t, hex.EncodeToString(sum[:]), artifact.SHA256)
		assert.Equal(t, int64(len(bs)), artifact.Size)
	})

	t.Run("empty table is an error", func(t *testing.T) {
		e := New(t.TempDir(), "csv", "report")
		_, err := e.Export(ctx, internal.NewTable([]string{"a"}), "run1")
		ee, ok := AsError(err)
		require.True(t, ok)
		assert.Equal(t, ReasonEmpty, ee.Reason)
	})

	t.Run("no temp files survive a successful export", func(t *testing.T) {
		dir := t.TempDir()
		e := New(dir, "csv", "report")

		_, err := e.Export(ctx, sampleTable(t), "run2")
		require.NoError(t, err)

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "report_run2.csv", entries[0].Name())
	})

	t.Run("parquet export promotes a non-empty artifact", func(t *testing.T) {
		dir := t.TempDir()
		e := New(dir, "parquet", "report")

		artifact, err := e.Export(ctx, sampleTable(t), "run3")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "report_run3.parquet"), artifact.Path)

		bs, err := os.ReadFile(artifact.Path)
		require.NoError(t, err)
		assert.Greater(t, len(bs), 4)
		// Parquet files end with the PAR1 magic.
		assert.Equal(t, "PAR1", string(bs[len(bs)-4:]))
	})
}

func TestSchemaForTable(t *testing.T) {
	schema, err := SchemaForTable(sampleTable(t))
	require.NoError(t, err)

	md := schema.ToGoParquetSchema()
	require.Len(t, md, 4)
	assert.Equal(t, "name=report_date, type=BYTE_ARRAY, convertedtype=UTF8", md[0])
	assert.Equal(t, "name=net_amount, type=DOUBLE", md[2])
	assert.Equal(t, "name=is_income, type=BOOLEAN", md[3])

	t.Run("empty table has no schema", func(t *testing.T) {
		_, err := SchemaForTable(internal.NewTable([]string{"a"}))
		assert.Error(t, err)
	})
}
