package types

import "time"

// HTTPConfig holds shared HTTP settings used by every component that makes
// network requests.
type HTTPConfig struct {
	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" validate:"gt=0"`

	// UserAgent is the product token sent with requests (e.g. "bibfetch/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" validate:"required"`

	// ContactEmail is appended to the User-Agent and sent as mailto to
	// metadata APIs that run a polite pool.
	ContactEmail string `json:"contact_email,omitempty" yaml:"contact_email,omitempty" validate:"omitempty,email"`
}

// PolitenessConfig throttles and retries remote calls.
type PolitenessConfig struct {
	// Delay is the minimum spacing between two requests to the same host.
	Delay time.Duration `json:"delay" yaml:"delay" validate:"gte=0"`

	// MaxRetries bounds retries of transient failures.
	MaxRetries int `json:"max_retries" yaml:"max_retries" validate:"gte=0,lte=10"`

	// RetryBaseDelay is the first backoff interval; it doubles per retry.
	RetryBaseDelay time.Duration `json:"retry_base_delay" yaml:"retry_base_delay" validate:"gte=0"`
}

// Browser engines supported by the browser strategy.
const (
	EngineChrome   = "chrome"
	EngineEdge     = "edge"
	EngineChromium = "chromium"
)

// BrowserConfig configures the browser-driven strategy.
type BrowserConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Headless bool   `json:"headless" yaml:"headless"`
	Engine   string `json:"engine" yaml:"engine" validate:"oneof=chrome edge chromium"`

	// ProfileDir is a browser user-data directory whose cookies and
	// sessions should be inherited.
	ProfileDir string `json:"profile,omitempty" yaml:"profile,omitempty"`

	// ExecPath overrides browser binary discovery.
	ExecPath string `json:"exec_path,omitempty" yaml:"exec_path,omitempty"`

	// PageTimeout bounds one browser retrieval (load, clicks, download).
	PageTimeout time.Duration `json:"page_timeout" yaml:"page_timeout" validate:"gt=0"`

	// LoginWait pauses after the page loads so an operator watching a
	// headful browser can sign in before anything is clicked.
	LoginWait time.Duration `json:"login_wait" yaml:"login_wait" validate:"gte=0"`

	// ClickTimeout is how long each clicked affordance gets to start and
	// finish a PDF download before the next one is tried.
	ClickTimeout time.Duration `json:"click_timeout" yaml:"click_timeout" validate:"gt=0"`
}

// CaptureConfig configures the manual capture supervisor.
type CaptureConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`

	// WatchDir is where the operator's browser saves downloads.
	WatchDir string `json:"watch_dir" yaml:"watch_dir" validate:"required_if=Enabled true"`

	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval" validate:"gt=0"`
	Timeout      time.Duration `json:"timeout" yaml:"timeout" validate:"gt=0"`

	// OpenBrowser opens the landing page in the default browser.
	OpenBrowser bool `json:"open_browser" yaml:"open_browser"`

	// Notify wakes pollers early on filesystem events.
	Notify bool `json:"notify" yaml:"notify"`
}

// Strategy names, in default order.
const (
	StrategyDirect     = "direct"
	StrategyOpenAccess = "openaccess"
	StrategySearch     = "search"
	StrategyBrowser    = "browser"
)

// DefaultStrategies is the default resolution order.
var DefaultStrategies = []string{StrategyDirect, StrategyOpenAccess, StrategySearch, StrategyBrowser}

// Metadata search backends.
const (
	SearchCrossref = "crossref"
	SearchOpenAlex = "openalex"
)

// PDF validators.
const (
	ValidatorHeader    = "header"
	ValidatorStructure = "structure"
)

// FetchConfig is the complete engine configuration. It is passed explicitly
// to every component; nothing reads ambient state after loading.
type FetchConfig struct {
	HTTPConfig `yaml:",inline"`
	Politeness PolitenessConfig `json:"politeness" yaml:"politeness"`

	// OutputDir receives the final PDFs.
	OutputDir string `json:"output_dir" yaml:"output_dir" validate:"required"`

	// Concurrency bounds concurrent resolution workers (1 = sequential).
	Concurrency int `json:"concurrency" yaml:"concurrency" validate:"gte=1,lte=16"`

	// Strategies is the ordered resolver chain.
	Strategies []string `json:"strategies" yaml:"strategies" validate:"min=1,dive,oneof=direct openaccess search browser"`

	// SearchBackend selects the bibliographic search API.
	SearchBackend string `json:"search_backend" yaml:"search_backend" validate:"oneof=crossref openalex"`

	// MaxCandidates bounds how many search results are inspected.
	MaxCandidates int `json:"max_candidates" yaml:"max_candidates" validate:"gte=1,lte=50"`

	// Validator selects the PDF check: header or structure.
	Validator string `json:"validator" yaml:"validator" validate:"oneof=header structure"`

	// MinSize rejects files smaller than this many bytes (0 disables).
	MinSize int64 `json:"min_size" yaml:"min_size" validate:"gte=0"`

	Browser BrowserConfig `json:"browser" yaml:"browser"`
	Capture CaptureConfig `json:"capture" yaml:"capture"`

	// JournalPath is the SQLite run journal; empty disables it.
	JournalPath string `json:"journal,omitempty" yaml:"journal,omitempty"`
}

// UserAgentHeader returns the User-Agent value including the contact
// address when one is configured.
func (c HTTPConfig) UserAgentHeader() string {
	if c.ContactEmail == "" {
		return c.UserAgent
	}
	return c.UserAgent + " (mailto:" + c.ContactEmail + ")"
}
