package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpakit/reportbot/internal"
	"github.com/rpakit/reportbot/internal/audit"
	"github.com/rpakit/reportbot/internal/config"
	"github.com/rpakit/reportbot/internal/portal"
	"github.com/rpakit/reportbot/internal/prompt"
	"github.com/rpakit/reportbot/internal/run"
)

type fakePortal struct {
	calls *[]string

	loginErr error
	fetchErr error
	artifact internal.RawArtifact
	closed   bool
}

func (f *fakePortal) Start(ctx context.Context) error {
	*f.calls = append(*f.calls, "start")
	return nil
}

func (f *fakePortal) Login(ctx context.Context, creds config.Credentials) error {
	*f.calls = append(*f.calls, "login")
	return f.loginErr
}

func (f *fakePortal) FetchReport(ctx context.Context, req internal.ReportRequest) (internal.RawArtifact, error) {
	*f.calls = append(*f.calls, "fetch")
	return f.artifact, f.fetchErr
}

func (f *fakePortal) Close(ctx context.Context) error {
	*f.calls = append(*f.calls, "close")
	f.closed = true
	return nil
}

type fakeTransformer struct {
	calls *[]string
	err   error
	table *internal.Table
}

func (f *fakeTransformer) Transform(ctx context.Context, artifact internal.RawArtifact, req internal.ReportRequest) (*internal.Table, error) {
	*f.calls = append(*f.calls, "transform")
	return f.table, f.err
}

type fakeExporter struct {
	calls    *[]string
	err      error
	artifact internal.ExportArtifact
}

func (f *fakeExporter) Export(ctx context.Context, table *internal.Table, runID string) (internal.ExportArtifact, error) {
	*f.calls = append(*f.calls, "export")
	return f.artifact, f.err
}

type fakePrompter struct {
	date time.Time
	err  error
}

func (f *fakePrompter) Ask(suggested time.Time) (time.Time, error) {
	if f.err != nil {
		return time.Time{}, f.err
	}
	if f.date.IsZero() {
		return suggested, nil
	}
	return f.date, nil
}

type fakeAuditor struct {
	entries []audit.Entry
}

func (f *fakeAuditor) Record(ctx context.Context, e audit.Entry) error {
	f.entries = append(f.entries, e)
	return nil
}

type fixture struct {
	calls       []string
	portal      *fakePortal
	transformer *fakeTransformer
	exporter    *fakeExporter
	prompter    *fakePrompter
	auditor     *fakeAuditor
}

func newFixture() *fixture {
	f := &fixture{}
	f.portal = &fakePortal{calls: &f.calls, artifact: internal.RawArtifact{Path: "raw.csv"}}

	cols := []string{"report_date", "client_id"}
	table := internal.NewTable(cols)
	_ = table.Append(internal.NewRecord(cols, []any{"2024-03-15", "101"}))

	f.transformer = &fakeTransformer{calls: &f.calls, table: table}
	f.exporter = &fakeExporter{
		calls: &f.calls,
		artifact: internal.ExportArtifact{
			Path:   "out/report.csv",
			Rows:   1,
			SHA256: "abc",
		},
	}
	f.prompter = &fakePrompter{}
	f.auditor = &fakeAuditor{}
	return f
}

func (f *fixture) pipeline(promptEnabled bool) *Pipeline {
	return New(
		"test-bot",
		config.Report{
			ID:                "daily",
			Prompt:            promptEnabled,
			DefaultOffsetDays: 1,
		},
		config.Credentials{Username: "u", Password: "p"},
		WithPortal(f.portal),
		WithTransformer(f.transformer),
		WithExporter(f.exporter),
		WithPrompter(f.prompter),
		WithAuditor(f.auditor),
	)
}

func TestPipelineExecute(t *testing.T) {
	ctx := context.Background()

	t.Run("stages run in order on success", func(t *testing.T) {
		f := newFixture()
		r := run.New()

		artifact, err := f.pipeline(false).Execute(ctx, r)
		require.NoError(t, err)

		assert.Equal(t, []string{"start", "login", "fetch", "transform", "export", "close"}, f.calls)
		assert.Equal(t, "out/report.csv", artifact.Path)
		assert.Equal(t, run.StatusSucceeded, r.Status.Current())

		require.Len(t, f.auditor.entries, 1)
		entry := f.auditor.entries[0]
		assert.Equal(t, string(run.StatusSucceeded), entry.Status)
		assert.Equal(t, 1, entry.RowsExported)
		assert.Equal(t, "abc", entry.SHA256)
	})

	t.Run("rejected credentials stop the run, session still closed", func(t *testing.T) {
		f := newFixture()
		f.portal.loginErr = &portal.AuthError{Reason: portal.AuthCredentialsRejected}
		r := run.New()

		_, err := f.pipeline(false).Execute(ctx, r)
		failure, ok := AsFailure(err)
		require.True(t, ok)
		assert.Equal(t, KindAuth, failure.Kind)
		assert.Equal(t, StageLogin, failure.Stage)

		assert.Equal(t, []string{"start", "login", "close"}, f.calls)
		assert.True(t, f.portal.closed)
		assert.Equal(t, run.StatusFailed, r.Status.Current())
	})

	t.Run("download timeout closes the session", func(t *testing.T) {
		f := newFixture()
		f.portal.fetchErr = &portal.AcquireError{Reason: portal.AcquireDownloadTimeout}
		r := run.New()

		_, err := f.pipeline(false).Execute(ctx, r)
		failure, ok := AsFailure(err)
		require.True(t, ok)
		assert.Equal(t, KindAcquire, failure.Kind)

		assert.Equal(t, []string{"start", "login", "fetch", "close"}, f.calls)
		assert.True(t, f.portal.closed)
	})

	t.Run("transform failure skips export", func(t *testing.T) {
		f := newFixture()
		f.transformer.err = fmt.Errorf("boom")
		r := run.New()

		_, err := f.pipeline(false).Execute(ctx, r)
		failure, ok := AsFailure(err)
		require.True(t, ok)
		assert.Equal(t, KindTransform, failure.Kind)

		assert.NotContains(t, f.calls, "export")
		assert.True(t, f.portal.closed)
	})

	t.Run("cancelled prompt aborts before any browser work", func(t *testing.T) {
		f := newFixture()
		f.prompter.err = prompt.ErrCancelled
		r := run.New()

		_, err := f.pipeline(true).Execute(ctx, r)
		failure, ok := AsFailure(err)
		require.True(t, ok)
		assert.Equal(t, KindCancelled, failure.Kind)
		assert.Equal(t, StagePrompt, failure.Stage)

		assert.Empty(t, f.calls)
		assert.Equal(t, run.StatusCancelled, r.Status.Current())

		require.Len(t, f.auditor.entries, 1)
		assert.Equal(t, string(run.StatusCancelled), f.auditor.entries[0].Status)
	})

	t.Run("prompted date flows into the request", func(t *testing.T) {
		f := newFixture()
		f.prompter.date = time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
		r := run.New()

		_, err := f.pipeline(true).Execute(ctx, r)
		require.NoError(t, err)
		assert.Contains(t, f.calls, "fetch")
	})

	t.Run("audit entry carries the failed stage", func(t *testing.T) {
		f := newFixture()
		f.exporter.err = fmt.Errorf("disk full")
		r := run.New()

		_, err := f.pipeline(false).Execute(ctx, r)
		require.Error(t, err)

		require.Len(t, f.auditor.entries, 1)
		entry := f.auditor.entries[0]
		assert.Equal(t, string(run.StatusFailed), entry.Status)
		assert.Equal(t, string(StageExport), entry.Stage)
		assert.Equal(t, string(KindExport), entry.ErrorKind)
	})
}

func TestFailureExitCodes(t *testing.T) {
	cases := map[Kind]int{
		KindConfig:    2,
		KindAuth:      3,
		KindAcquire:   4,
		KindTransform: 5,
		KindExport:    6,
		KindCancelled: 7,
	}
	for kind, want := range cases {
		f := &Failure{Kind: kind, Stage: StageConfig}
		assert.Equal(t, want, f.ExitCode(), "kind %s", kind)
	}

	unknown := &Failure{Kind: Kind("other")}
	assert.Equal(t, 1, unknown.ExitCode())
}
