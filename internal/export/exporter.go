// Package export writes the normalized table to its persistent
// destination. The write is all-or-nothing: content is verified under a
// temporary name and atomically promoted, then optionally mirrored.
package export

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/xitongsys/parquet-go/writer"
	"go.uber.org/zap"

	"github.com/rpakit/reportbot/internal"
	"github.com/rpakit/reportbot/internal/local"
)

const csvSeparator = ';'

type Option func(*Exporter)

func WithLogger(logger *zap.Logger) Option {
	return func(e *Exporter) {
		e.logger = logger
	}
}

// WithMirror adds a secondary repository that receives a copy of every
// promoted artifact.
func WithMirror(mirror internal.Repository) Option {
	return func(e *Exporter) {
		e.mirror = mirror
	}
}

type Exporter struct {
	dir      string
	format   string
	baseName string
	logger   *zap.Logger
	mirror   internal.Repository
}

func New(dir, format, baseName string, opts ...Option) *Exporter {
	e := &Exporter{
		dir:      dir,
		format:   format,
		baseName: baseName,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Export encodes the table and writes it under a deterministic, run-scoped
// name. On success the returned artifact carries the final path, size and
// checksum.
func (e *Exporter) Export(ctx context.Context, table *internal.Table, runID string) (internal.ExportArtifact, error) {
	if table == nil || table.NumRows() == 0 {
		return internal.ExportArtifact{}, &Error{Reason: ReasonEmpty}
	}

	var (
		buf bytes.Buffer
		err error
	)
	switch e.format {
	case "parquet":
		err = encodeParquet(&buf, table)
	default:
		err = encodeCSV(&buf, table)
	}
	if err != nil {
		return internal.ExportArtifact{}, &Error{Reason: ReasonWriteFailed, Err: err}
	}

	sum := sha256.Sum256(buf.Bytes())
	size := int64(buf.Len())
	key := fmt.Sprintf("%s_%s.%s", e.baseName, runID, e.format)

	repo := local.New(
		e.dir,
		local.WithLogger(e.logger),
		local.WithVerify(e.verify),
	)
	if err := repo.Write(ctx, key, bytes.NewReader(buf.Bytes())); err != nil {
		return internal.ExportArtifact{}, &Error{Reason: ReasonVerifyFailed, Err: err}
	}

	artifact := internal.ExportArtifact{
		Path:   repo.Path(key),
		Format: e.format,
		Rows:   table.NumRows(),
		Size:   size,
		SHA256: hex.EncodeToString(sum[:]),
	}

	e.logger.Info("export complete",
		zap.String("path", artifact.Path),
		zap.Int("rows", artifact.Rows),
		zap.Int64("size", artifact.Size),
		zap.String("sha256", artifact.SHA256),
	)

	if e.mirror != nil {
		if err := e.mirror.Write(ctx, key, bytes.NewReader(buf.Bytes())); err != nil {
			// The local artifact is already promoted; a mirror failure
			// does not fail the run.
			e.logger.Warn("mirror write failed", zap.Error(err))
		}
	}

	return artifact, nil
}

// verify runs against the temporary file before promotion.
func (e *Exporter) verify(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return fmt.Errorf("artifact is empty")
	}

	if e.format != "csv" {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.Comma = csvSeparator
	if _, err := reader.Read(); err != nil {
		return fmt.Errorf("unparseable csv: %w", err)
	}
	return nil
}

// encodeCSV writes the table with a semicolon separator and every field
// quoted, matching the format downstream consumers of the report expect.
func encodeCSV(buf *bytes.Buffer, table *internal.Table) error {
	writeRow := func(fields []string) {
		for i, f := range fields {
			if i > 0 {
				buf.WriteByte(csvSeparator)
			}
			buf.WriteByte('"')
			buf.WriteString(strings.ReplaceAll(f, `"`, `""`))
			buf.WriteByte('"')
		}
		buf.WriteByte('\n')
	}

	writeRow(table.Columns())

	for _, record := range table.Records() {
		fields := make([]string, record.Len())
		for i, v := range record.Values() {
			fields[i] = formatValue(v)
		}
		writeRow(fields)
	}
	return nil
}

func formatValue(v any) string {
	switch value := v.(type) {
	case string:
		return value
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(value, 10)
	case bool:
		return strconv.FormatBool(value)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", value)
	}
}

func encodeParquet(buf *bytes.Buffer, table *internal.Table) error {
	schema, err := SchemaForTable(table)
	if err != nil {
		return err
	}

	pw, err := writer.NewCSVWriterFromWriter(schema.ToGoParquetSchema(), buf, 1)
	if err != nil {
		return err
	}

	for _, record := range table.Records() {
		row, err := schema.RecordToParquetRow(record)
		if err != nil {
			return err
		}
		if err := pw.Write(row); err != nil {
			return err
		}
	}

	return pw.WriteStop()
}
