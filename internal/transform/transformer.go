// Package transform turns the raw downloaded report into the normalized
// table: headers standardized, types coerced, derived columns computed,
// invalid rows dropped or rejected per policy.
package transform

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/rpakit/reportbot/internal"
	"github.com/rpakit/reportbot/internal/config"
)

// ColReportDate is the derived leading column carrying the requested
// report date in ISO form.
const ColReportDate = "report_date"

// ColIsIncome is the derived flag computed from the transaction type.
const ColIsIncome = "is_income"

type Option func(*Transformer)

func WithLogger(logger *zap.Logger) Option {
	return func(t *Transformer) {
		t.logger = logger
	}
}

type Transformer struct {
	cfg    config.Transform
	logger *zap.Logger
}

func New(cfg config.Transform, opts ...Option) *Transformer {
	t := &Transformer{
		cfg:    cfg,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Transform parses the raw artifact and produces the normalized table.
// Invariants on return: no empty values in the key column, no duplicate
// primary keys, amounts coerced to float64. Re-transforming the same
// artifact yields an identical table.
func (t *Transformer) Transform(ctx context.Context, artifact internal.RawArtifact, req internal.ReportRequest) (*internal.Table, error) {
	f, err := os.Open(artifact.Path)
	if err != nil {
		return nil, &Error{Reason: ReasonUnreadableFormat, Err: err}
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.Comma = ';'
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, &Error{Reason: ReasonUnreadableFormat, Err: fmt.Errorf("read header: %w", err)}
	}

	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = normalizeHeader(h)
	}

	keyIdx := indexOf(columns, t.cfg.KeyColumn)
	amountIdx := indexOf(columns, t.cfg.AmountColumn)
	typeIdx := indexOf(columns, t.cfg.TypeColumn)
	if keyIdx < 0 || amountIdx < 0 {
		return nil, &Error{
			Reason: ReasonSchemaMismatch,
			Err: fmt.Errorf(
				"artifact columns %v missing %q or %q",
				columns, t.cfg.KeyColumn, t.cfg.AmountColumn,
			),
		}
	}

	outCols := []string{ColReportDate, t.cfg.KeyColumn}
	if typeIdx >= 0 {
		outCols = append(outCols, t.cfg.TypeColumn)
	}
	outCols = append(outCols, t.cfg.AmountColumn)
	if typeIdx >= 0 {
		outCols = append(outCols, ColIsIncome)
	}

	table := internal.NewTable(outCols)
	reportDate := req.Date.Format("2006-01-02")
	seen := make(map[string]struct{})

	var (
		line     = 1
		dropped  int
		filtered int
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, &Error{Reason: ReasonUnreadableFormat, Err: err}
		}

		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			if rerr := t.invalidRow(line, fmt.Errorf("parse row: %w", err)); rerr != nil {
				return nil, rerr
			}
			dropped++
			continue
		}
		if len(row) != len(columns) {
			if rerr := t.invalidRow(line, fmt.Errorf("expected %d fields, got %d", len(columns), len(row))); rerr != nil {
				return nil, rerr
			}
			dropped++
			continue
		}

		key := strings.TrimSpace(row[keyIdx])
		if key == "" {
			if rerr := t.invalidRow(line, fmt.Errorf("empty key column %q", t.cfg.KeyColumn)); rerr != nil {
				return nil, rerr
			}
			dropped++
			continue
		}

		amount, err := strconv.ParseFloat(strings.TrimSpace(row[amountIdx]), 64)
		if err != nil {
			if rerr := t.invalidRow(line, fmt.Errorf("non-numeric %q: %w", t.cfg.AmountColumn, err)); rerr != nil {
				return nil, rerr
			}
			dropped++
			continue
		}

		if _, dup := seen[key]; dup {
			if rerr := t.invalidRow(line, fmt.Errorf("duplicate primary key %q", key)); rerr != nil {
				return nil, rerr
			}
			dropped++
			continue
		}

		if t.cfg.DropNonPositive && amount <= 0 {
			t.logger.Debug("filtering non-positive amount",
				zap.Int("line", line),
				zap.Float64("amount", amount),
			)
			filtered++
			continue
		}

		values := []any{reportDate, key}
		if typeIdx >= 0 {
			txType := strings.TrimSpace(row[typeIdx])
			values = append(values, txType, amount, t.isIncome(txType))
		} else {
			values = append(values, amount)
		}

		seen[key] = struct{}{}
		if err := table.Append(internal.NewRecord(outCols, values)); err != nil {
			return nil, &Error{Reason: ReasonSchemaMismatch, Err: err}
		}
	}

	if table.NumRows() == 0 {
		return nil, &Error{
			Reason: ReasonEmptyResult,
			Err:    fmt.Errorf("%d rows dropped, %d filtered", dropped, filtered),
		}
	}

	t.logger.Info("transform complete",
		zap.Int("rows", table.NumRows()),
		zap.Int("dropped", dropped),
		zap.Int("filtered", filtered),
	)
	return table, nil
}

// invalidRow applies the configured row policy: nil return means the row
// is dropped with a warning, a non-nil return aborts the transform.
func (t *Transformer) invalidRow(line int, cause error) error {
	if t.cfg.OnInvalid == config.RowPolicyFail {
		return &Error{
			Reason: ReasonSchemaMismatch,
			Err:    fmt.Errorf("line %d: %w", line, cause),
		}
	}
	t.logger.Warn("dropping invalid row",
		zap.Int("line", line),
		zap.Error(cause),
	)
	return nil
}

func (t *Transformer) isIncome(txType string) bool {
	lower := strings.ToLower(txType)
	for _, income := range t.cfg.IncomeTypes {
		if strings.Contains(lower, strings.ToLower(income)) {
			return true
		}
	}
	return false
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.ReplaceAll(h, " ", "_")
}

func indexOf(columns []string, name string) int {
	for i, c := range columns {
		if c == name {
			return i
		}
	}
	return -1
}
