// Package pipeline sequences one run: prompt, login, acquire, transform,
// export. It enforces the stage order and the overall error policy, and
// guarantees resource release on every exit path.
package pipeline

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/rpakit/reportbot/internal"
	"github.com/rpakit/reportbot/internal/audit"
	"github.com/rpakit/reportbot/internal/config"
	"github.com/rpakit/reportbot/internal/prompt"
	"github.com/rpakit/reportbot/internal/run"
)

// Portal is the browser capability the pipeline drives. It is an
// interface so the orchestration logic is testable against a fake.
type Portal interface {
	Start(ctx context.Context) error
	Login(ctx context.Context, creds config.Credentials) error
	FetchReport(ctx context.Context, req internal.ReportRequest) (internal.RawArtifact, error)
	Close(ctx context.Context) error
}

type Transformer interface {
	Transform(ctx context.Context, artifact internal.RawArtifact, req internal.ReportRequest) (*internal.Table, error)
}

type Exporter interface {
	Export(ctx context.Context, table *internal.Table, runID string) (internal.ExportArtifact, error)
}

// Prompter blocks until the user confirms a report date or cancels.
type Prompter interface {
	Ask(suggested time.Time) (time.Time, error)
}

type Auditor interface {
	Record(ctx context.Context, e audit.Entry) error
}

type Option func(*Pipeline)

func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

func WithPortal(portal Portal) Option {
	return func(p *Pipeline) {
		p.portal = portal
	}
}

func WithTransformer(transformer Transformer) Option {
	return func(p *Pipeline) {
		p.transformer = transformer
	}
}

func WithExporter(exporter Exporter) Option {
	return func(p *Pipeline) {
		p.exporter = exporter
	}
}

func WithPrompter(prompter Prompter) Option {
	return func(p *Pipeline) {
		p.prompter = prompter
	}
}

func WithAuditor(auditor Auditor) Option {
	return func(p *Pipeline) {
		p.auditor = auditor
	}
}

type Pipeline struct {
	botName string
	report  config.Report
	creds   config.Credentials

	portal      Portal
	transformer Transformer
	exporter    Exporter
	prompter    Prompter
	auditor     Auditor

	logger *zap.Logger
}

func New(botName string, report config.Report, creds config.Credentials, opts ...Option) *Pipeline {
	p := &Pipeline{
		botName: botName,
		report:  report,
		creds:   creds,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Execute drives one run end to end. On failure the returned error is
// always a *Failure carrying the stage and kind; no stage is attempted
// after a failed one. The browser session is closed and the outcome is
// audited on every path.
func (p *Pipeline) Execute(ctx context.Context, r *run.Run) (internal.ExportArtifact, error) {
	if err := r.Status.Transition(run.StatusRunning); err != nil {
		return internal.ExportArtifact{}, newFailure(KindConfig, StageConfig, err)
	}

	p.logger.Info("run started", zap.String("bot", p.botName))

	artifact, failure := p.execute(ctx, r)

	p.finalize(ctx, r, artifact, failure)

	if failure != nil {
		return internal.ExportArtifact{}, failure
	}
	return artifact, nil
}

func (p *Pipeline) execute(ctx context.Context, r *run.Run) (internal.ExportArtifact, *Failure) {
	req, failure := p.resolveRequest()
	if failure != nil {
		return internal.ExportArtifact{}, failure
	}

	if err := p.portal.Start(ctx); err != nil {
		return internal.ExportArtifact{}, newFailure(KindAuth, StageLogin, err)
	}
	// The browser is the one externally-owned resource; it is released on
	// every path from here on, success or failure.
	defer func() {
		if err := p.portal.Close(ctx); err != nil {
			p.logger.Warn("closing browser session", zap.Error(err))
		}
	}()

	if err := p.portal.Login(ctx, p.creds); err != nil {
		p.logger.Error("login failed", zap.Error(err))
		return internal.ExportArtifact{}, newFailure(KindAuth, StageLogin, err)
	}

	raw, err := p.portal.FetchReport(ctx, req)
	if err != nil {
		p.logger.Error("report acquisition failed", zap.Error(err))
		return internal.ExportArtifact{}, newFailure(KindAcquire, StageAcquire, err)
	}

	table, err := p.transformer.Transform(ctx, raw, req)
	if err != nil {
		p.logger.Error("transform failed", zap.Error(err))
		return internal.ExportArtifact{}, newFailure(KindTransform, StageTransform, err)
	}

	artifact, err := p.exporter.Export(ctx, table, r.ID)
	if err != nil {
		p.logger.Error("export failed", zap.Error(err))
		return internal.ExportArtifact{}, newFailure(KindExport, StageExport, err)
	}

	return artifact, nil
}

// resolveRequest builds the report request from the prompt or the
// configured default. A cancelled prompt aborts the run before any browser
// session is opened.
func (p *Pipeline) resolveRequest() (internal.ReportRequest, *Failure) {
	suggested := time.Now().AddDate(0, 0, -p.report.DefaultOffsetDays)

	date := suggested
	if p.report.Prompt && p.prompter != nil {
		chosen, err := p.prompter.Ask(suggested)
		if err != nil {
			if errors.Is(err, prompt.ErrCancelled) {
				p.logger.Warn("run cancelled at date prompt")
				return internal.ReportRequest{}, newFailure(KindCancelled, StagePrompt, err)
			}
			return internal.ReportRequest{}, newFailure(KindConfig, StagePrompt, err)
		}
		date = chosen
	}

	p.logger.Info("report request resolved",
		zap.String("report_id", p.report.ID),
		zap.Time("date", date),
	)
	return internal.ReportRequest{
		ReportID: p.report.ID,
		Date:     date,
	}, nil
}

// finalize settles the run status and writes the audit entry. It runs on
// every terminal path.
func (p *Pipeline) finalize(ctx context.Context, r *run.Run, artifact internal.ExportArtifact, failure *Failure) {
	entry := audit.Entry{
		RunID:        r.ID,
		BotName:      p.botName,
		RowsExported: artifact.Rows,
		ArtifactPath: artifact.Path,
		SHA256:       artifact.SHA256,
		StartedAt:    r.StartedAt,
		FinishedAt:   time.Now(),
	}

	switch {
	case failure == nil:
		_ = r.Status.Transition(run.StatusSucceeded)
		p.logger.Info("run succeeded",
			zap.String("artifact", artifact.Path),
			zap.Int("rows", artifact.Rows),
		)
	case failure.Kind == KindCancelled:
		_ = r.Status.Transition(run.StatusCancelled)
		entry.Stage = string(failure.Stage)
		entry.ErrorKind = string(failure.Kind)
	default:
		_ = r.Status.Transition(run.StatusFailed)
		entry.Stage = string(failure.Stage)
		entry.ErrorKind = string(failure.Kind)
		entry.ErrorDetail = failure.Error()
		p.logger.Error("run failed",
			zap.String("stage", string(failure.Stage)),
			zap.String("kind", string(failure.Kind)),
			zap.Error(failure.Err),
		)
	}
	entry.Status = string(r.Status.Current())

	if p.auditor == nil {
		return
	}
	if err := p.auditor.Record(ctx, entry); err != nil {
		p.logger.Warn("writing audit entry", zap.Error(err))
	}
}
