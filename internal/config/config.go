package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Reason classifies a configuration failure.
type Reason string

const (
	ReasonMissingField  Reason = "missing_field"
	ReasonMalformedFile Reason = "malformed_file"
)

// Error is returned for any configuration problem. It is always a
// pre-flight failure: no browser session is opened on a bad config.
type Error struct {
	Reason Reason
	Field  string
	Err    error
}

func (e *Error) Error() string {
	switch e.Reason {
	case ReasonMissingField:
		return fmt.Sprintf("config: missing required field %q", e.Field)
	case ReasonMalformedFile:
		return fmt.Sprintf("config: malformed file: %v", e.Err)
	}
	return fmt.Sprintf("config: %v", e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// AsError unwraps a *Error from err, if one is present.
func AsError(err error) (*Error, bool) {
	var ce *Error
	ok := errors.As(err, &ce)
	return ce, ok
}

type Logger struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
}

type Global struct {
	Logger Logger `yaml:"logger"`
}

// Credentials is the login triple. Values are immutable after load and are
// never written to the log in plaintext.
type Credentials struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Company  string `yaml:"company"`
}

// Selectors are the CSS/XPath handles the portal drives. They live in
// configuration so a markup change on the target site does not require a
// rebuild.
type Selectors struct {
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	Company     string `yaml:"company"`
	Submit      string `yaml:"submit"`
	LoggedIn    string `yaml:"logged_in"`
	LoginError  string `yaml:"login_error"`
	DateFilter  string `yaml:"date_filter"`
	ApplyFilter string `yaml:"apply_filter"`
	Export      string `yaml:"export"`
	ExportCSV   string `yaml:"export_csv"`
	Confirm     string `yaml:"confirm"`
}

type Portal struct {
	LoginURL            string    `yaml:"login_url"`
	ReportURL           string    `yaml:"report_url"`
	Headless            bool      `yaml:"headless"`
	BrowserBin          string    `yaml:"browser_bin"`
	NavigationTimeoutMs int       `yaml:"navigation_timeout_ms"`
	DownloadTimeoutMs   int       `yaml:"download_timeout_ms"`
	DownloadDir         string    `yaml:"download_dir"`
	Selectors           Selectors `yaml:"selectors"`
}

// NavigationTimeout bounds every page navigation and element wait.
func (p Portal) NavigationTimeout() time.Duration {
	if p.NavigationTimeoutMs == 0 {
		return 30 * time.Second
	}
	return time.Duration(p.NavigationTimeoutMs) * time.Millisecond
}

// DownloadTimeout bounds the wait for the downloaded artifact to appear.
func (p Portal) DownloadTimeout() time.Duration {
	if p.DownloadTimeoutMs == 0 {
		return 2 * time.Minute
	}
	return time.Duration(p.DownloadTimeoutMs) * time.Millisecond
}

type Report struct {
	ID         string `yaml:"id"`
	Prompt     bool   `yaml:"prompt"`
	DateFormat string `yaml:"date_format"`
	// DefaultOffsetDays is subtracted from today to build the suggested
	// report date. 1 means yesterday.
	DefaultOffsetDays int `yaml:"default_offset_days"`
}

// RowPolicy selects what the transformer does with a row that fails
// validation.
type RowPolicy string

const (
	RowPolicySkip RowPolicy = "skip"
	RowPolicyFail RowPolicy = "fail"
)

type Transform struct {
	OnInvalid       RowPolicy `yaml:"on_invalid"`
	KeyColumn       string    `yaml:"key_column"`
	AmountColumn    string    `yaml:"amount_column"`
	TypeColumn      string    `yaml:"type_column"`
	IncomeTypes     []string  `yaml:"income_types"`
	DropNonPositive bool      `yaml:"drop_non_positive"`
}

type S3 struct {
	Bucket         string `yaml:"bucket"`
	Region         string `yaml:"region"`
	Prefix         string `yaml:"prefix"`
	Endpoint       string `yaml:"endpoint"`
	ForcePathStyle bool   `yaml:"force_path_style"`
}

type Export struct {
	Dir      string `yaml:"dir"`
	Format   string `yaml:"format"`
	BaseName string `yaml:"base_name"`
	S3       *S3    `yaml:"s3"`
}

type Audit struct {
	Path string `yaml:"path"`
}

type Bot struct {
	Name        string      `yaml:"name"`
	Credentials Credentials `yaml:"credentials"`
	Portal      Portal      `yaml:"portal"`
	Report      Report      `yaml:"report"`
	Transform   Transform   `yaml:"transform"`
	Export      Export      `yaml:"export"`
	Audit       Audit       `yaml:"audit"`
}

type Config struct {
	Global Global `yaml:"global"`
	Bot    Bot    `yaml:"bot"`
}

type LoadOption func(*Config)

// WithEnvOverrides lets secrets come from the environment instead of the
// config file. Empty values leave the file's values in place.
func WithEnvOverrides(username, password string) LoadOption {
	return func(c *Config) {
		if username != "" {
			c.Bot.Credentials.Username = username
		}
		if password != "" {
			c.Bot.Credentials.Password = password
		}
	}
}

// NewConfigFromFile loads and validates a bot configuration. Overrides are
// applied before validation so a secret supplied via the environment
// satisfies a required field.
func NewConfigFromFile(fpath string, opts ...LoadOption) (*Config, error) {
	bs, err := os.ReadFile(fpath)
	if err != nil {
		return nil, &Error{Reason: ReasonMalformedFile, Err: err}
	}

	var cfg Config
	if err := yaml.Unmarshal(bs, &cfg); err != nil {
		return nil, &Error{Reason: ReasonMalformedFile, Err: err}
	}

	cfg.applyDefaults()

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Global.Logger.Level == "" {
		c.Global.Logger.Level = "info"
	}
	if c.Global.Logger.Dir == "" {
		c.Global.Logger.Dir = "logs"
	}
	if c.Bot.Portal.DownloadDir == "" {
		c.Bot.Portal.DownloadDir = "data/downloads"
	}
	if c.Bot.Report.DateFormat == "" {
		c.Bot.Report.DateFormat = "02/01/2006"
	}
	if c.Bot.Report.DefaultOffsetDays == 0 {
		c.Bot.Report.DefaultOffsetDays = 1
	}
	if c.Bot.Transform.OnInvalid == "" {
		c.Bot.Transform.OnInvalid = RowPolicySkip
	}
	if c.Bot.Transform.KeyColumn == "" {
		c.Bot.Transform.KeyColumn = "client_id"
	}
	if c.Bot.Transform.AmountColumn == "" {
		c.Bot.Transform.AmountColumn = "net_amount"
	}
	if c.Bot.Transform.TypeColumn == "" {
		c.Bot.Transform.TypeColumn = "transaction_type"
	}
	if len(c.Bot.Transform.IncomeTypes) == 0 {
		c.Bot.Transform.IncomeTypes = []string{"sale"}
	}
	if c.Bot.Export.Format == "" {
		c.Bot.Export.Format = "csv"
	}
	if c.Bot.Export.BaseName == "" {
		c.Bot.Export.BaseName = "report"
	}
	if c.Bot.Audit.Path == "" {
		c.Bot.Audit.Path = "data/audit.db"
	}
}

// Validate checks the required fields are present. It returns the first
// missing field so callers fail fast before any session is opened.
func (c *Config) Validate() error {
	required := []struct {
		field string
		value string
	}{
		{"bot.credentials.username", c.Bot.Credentials.Username},
		{"bot.credentials.password", c.Bot.Credentials.Password},
		{"bot.portal.login_url", c.Bot.Portal.LoginURL},
		{"bot.portal.report_url", c.Bot.Portal.ReportURL},
		{"bot.export.dir", c.Bot.Export.Dir},
	}

	for _, r := range required {
		if r.value == "" {
			return &Error{Reason: ReasonMissingField, Field: r.field}
		}
	}

	switch c.Bot.Transform.OnInvalid {
	case RowPolicySkip, RowPolicyFail:
	default:
		return &Error{
			Reason: ReasonMalformedFile,
			Err:    fmt.Errorf("unknown row policy: %q", c.Bot.Transform.OnInvalid),
		}
	}

	switch c.Bot.Export.Format {
	case "csv", "parquet":
	default:
		return &Error{
			Reason: ReasonMalformedFile,
			Err:    fmt.Errorf("unknown export format: %q", c.Bot.Export.Format),
		}
	}

	return nil
}
