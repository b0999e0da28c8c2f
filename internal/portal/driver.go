// Package portal drives the target web application through a real browser:
// login, report navigation, and the download of the raw report artifact.
package portal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/rpakit/reportbot/internal"
	"github.com/rpakit/reportbot/internal/config"
)

type Option func(*Driver)

func WithLogger(logger *zap.Logger) Option {
	return func(d *Driver) {
		d.logger = logger
	}
}

func WithDateFormat(format string) Option {
	return func(d *Driver) {
		d.dateFormat = format
	}
}

// Driver owns the external browser process for the duration of one run.
// Close must be called on every exit path so no browser is left behind.
type Driver struct {
	cfg        config.Portal
	dateFormat string
	logger     *zap.Logger

	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	login    *loginFSM
}

func New(cfg config.Portal, opts ...Option) *Driver {
	d := &Driver{
		cfg:        cfg,
		dateFormat: "02/01/2006",
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.login = newLoginFSM(d.logger)
	return d
}

// Start launches the browser and opens a blank page. It is kept separate
// from Login so session startup failures are distinguishable from
// credential problems.
func (d *Driver) Start(ctx context.Context) error {
	l := launcher.New().Headless(d.cfg.Headless)
	if d.cfg.BrowserBin != "" {
		l = l.Bin(d.cfg.BrowserBin)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return &AuthError{Reason: AuthSessionStart, Err: fmt.Errorf("launch browser: %w", err)}
	}
	d.launcher = l

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return &AuthError{Reason: AuthSessionStart, Err: fmt.Errorf("connect browser: %w", err)}
	}
	d.browser = browser

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return &AuthError{Reason: AuthSessionStart, Err: fmt.Errorf("open page: %w", err)}
	}
	d.page = page

	downloadDir, err := filepath.Abs(d.cfg.DownloadDir)
	if err != nil {
		return &AuthError{Reason: AuthSessionStart, Err: err}
	}
	if err := (proto.BrowserSetDownloadBehavior{
		Behavior:     proto.BrowserSetDownloadBehaviorBehaviorAllow,
		DownloadPath: downloadDir,
	}).Call(browser); err != nil {
		return &AuthError{Reason: AuthSessionStart, Err: fmt.Errorf("set download dir: %w", err)}
	}

	d.logger.Info("browser session opened",
		zap.Bool("headless", d.cfg.Headless),
		zap.String("download_dir", downloadDir),
	)
	return nil
}

// Login performs the authentication sequence. One retry is allowed for a
// transient navigation timeout; a rejected credential fails immediately so
// the account is not locked out by repeated attempts.
func (d *Driver) Login(ctx context.Context, creds config.Credentials) error {
	err := d.loginOnce(ctx, creds)
	if err == nil {
		return nil
	}

	var ae *AuthError
	if errors.As(err, &ae) && ae.Reason == AuthNavigationTimeout {
		d.logger.Warn("login navigation timed out, retrying once", zap.Error(err))
		return d.loginOnce(ctx, creds)
	}
	return err
}

func (d *Driver) loginOnce(ctx context.Context, creds config.Credentials) error {
	d.logger.Info("navigating to login page", zap.String("url", d.cfg.LoginURL))

	if err := d.navigate(ctx, d.cfg.LoginURL); err != nil {
		return &AuthError{Reason: AuthNavigationTimeout, Err: err}
	}
	if err := d.login.transition(stateSessionOpened); err != nil {
		return err
	}

	sel := d.cfg.Selectors
	fields := []struct {
		selector string
		value    string
	}{
		{sel.Username, creds.Username},
		{sel.Password, creds.Password},
		{sel.Company, creds.Company},
	}
	for _, f := range fields {
		if f.selector == "" {
			continue
		}
		if err := d.fill(f.selector, f.value); err != nil {
			d.markAuthFailed()
			return &AuthError{Reason: AuthNavigationTimeout, Err: err}
		}
	}

	if err := d.click(sel.Submit); err != nil {
		d.markAuthFailed()
		return &AuthError{Reason: AuthNavigationTimeout, Err: err}
	}
	if err := d.login.transition(stateAuthSubmitted); err != nil {
		return err
	}

	// The page either shows the post-login landmark or an error banner.
	// Racing the two keeps a wrong password from costing a full timeout.
	el, err := d.page.Timeout(d.cfg.NavigationTimeout()).Race().
		Element(sel.LoggedIn).
		Element(sel.LoginError).
		Do()
	if err != nil {
		_ = d.login.transition(stateAuthenticationErr)
		return &AuthError{Reason: AuthNavigationTimeout, Err: err}
	}

	if rejected, _ := el.Matches(sel.LoginError); rejected {
		_ = d.login.transition(stateAuthenticationErr)
		d.logger.Error("credentials rejected by portal")
		return &AuthError{Reason: AuthCredentialsRejected}
	}

	if err := d.login.transition(stateAuthenticatedOK); err != nil {
		return err
	}
	d.logger.Info("login succeeded")
	return nil
}

// markAuthFailed records the failure transition without clobbering the
// error that caused it.
func (d *Driver) markAuthFailed() {
	if d.login.state() == stateSessionOpened {
		_ = d.login.transition(stateAuthSubmitted)
	}
	_ = d.login.transition(stateAuthenticationErr)
}

// FetchReport navigates to the report view, applies the date filter,
// triggers the export, and waits for the artifact to land in the download
// directory. Every step has a bounded wait.
func (d *Driver) FetchReport(ctx context.Context, req internal.ReportRequest) (internal.RawArtifact, error) {
	if d.login.state() != stateAuthenticatedOK {
		return internal.RawArtifact{}, &AcquireError{
			Reason: AcquireUnexpectedPageState,
			Err:    fmt.Errorf("fetch before successful login"),
		}
	}

	// Stale files from a previous run must never be mistaken for this
	// run's download.
	if err := resetDir(d.cfg.DownloadDir); err != nil {
		return internal.RawArtifact{}, &AcquireError{Reason: AcquireUnexpectedPageState, Err: err}
	}

	d.logger.Info("navigating to report view",
		zap.String("url", d.cfg.ReportURL),
		zap.String("report_id", req.ReportID),
		zap.Time("date", req.Date),
	)
	if err := d.navigate(ctx, d.cfg.ReportURL); err != nil {
		return internal.RawArtifact{}, &AcquireError{Reason: AcquireNavigationTimeout, Err: err}
	}

	sel := d.cfg.Selectors
	if sel.DateFilter != "" {
		if err := d.fill(sel.DateFilter, req.Date.Format(d.dateFormat)); err != nil {
			return internal.RawArtifact{}, &AcquireError{Reason: AcquireUnexpectedPageState, Err: err}
		}
		if sel.ApplyFilter != "" {
			if err := d.click(sel.ApplyFilter); err != nil {
				return internal.RawArtifact{}, &AcquireError{Reason: AcquireUnexpectedPageState, Err: err}
			}
		}
	}

	for _, selector := range []string{sel.Export, sel.ExportCSV, sel.Confirm} {
		if selector == "" {
			continue
		}
		if err := d.click(selector); err != nil {
			return internal.RawArtifact{}, &AcquireError{Reason: AcquireUnexpectedPageState, Err: err}
		}
	}

	d.logger.Info("export triggered, waiting for download",
		zap.Duration("timeout", d.cfg.DownloadTimeout()),
	)
	path, err := WaitForArtifact(ctx, d.logger, d.cfg.DownloadDir, ".csv", d.cfg.DownloadTimeout())
	if err != nil {
		return internal.RawArtifact{}, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return internal.RawArtifact{}, &AcquireError{Reason: AcquireUnexpectedPageState, Err: err}
	}

	d.logger.Info("download complete",
		zap.String("path", path),
		zap.Int64("size", info.Size()),
	)
	return internal.RawArtifact{
		Path:   path,
		Format: "csv",
		Size:   info.Size(),
	}, nil
}

// Close shuts the browser down. Safe to call regardless of how far the
// run got.
func (d *Driver) Close(ctx context.Context) error {
	var err error
	if d.browser != nil {
		err = d.browser.Close()
		d.browser = nil
	}
	if d.launcher != nil {
		d.launcher.Cleanup()
		d.launcher = nil
	}
	d.logger.Info("browser session closed")
	return err
}

func (d *Driver) navigate(ctx context.Context, url string) error {
	page := d.page.Context(ctx).Timeout(d.cfg.NavigationTimeout())
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("wait load %s: %w", url, err)
	}
	return nil
}

func (d *Driver) fill(selector, value string) error {
	el, err := d.page.Timeout(d.cfg.NavigationTimeout()).Element(selector)
	if err != nil {
		return fmt.Errorf("element %q: %w", selector, err)
	}
	if err := el.Input(value); err != nil {
		return fmt.Errorf("input %q: %w", selector, err)
	}
	return nil
}

func (d *Driver) click(selector string) error {
	el, err := d.page.Timeout(d.cfg.NavigationTimeout()).Element(selector)
	if err != nil {
		return fmt.Errorf("element %q: %w", selector, err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click %q: %w", selector, err)
	}
	return nil
}

func resetDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}
