// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package config turns viper settings (flags, bibfetch.yaml, BIBFETCH_*
// environment, .env) into a validated types.FetchConfig.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/pdiddy/bibfetch/pkg/types"
)

// Keys read from viper.
const (
	KeyOutputDir      = "output_dir"
	KeyContactEmail   = "contact_email"
	KeyUserAgent      = "user_agent"
	KeyTimeout        = "timeout"
	KeyDelay          = "delay"
	KeyMaxRetries     = "max_retries"
	KeyRetryBaseDelay = "retry_base_delay"
	KeyMaxCandidates  = "max_candidates"
	KeyConcurrency    = "concurrency"
	KeyStrategies     = "strategies"
	KeySearchBackend  = "search_backend"
	KeyValidator      = "validator"
	KeyMinSize        = "min_size"
	KeyJournal        = "journal"

	KeyBrowserEnabled      = "browser.enabled"
	KeyBrowserHeadless     = "browser.headless"
	KeyBrowserEngine       = "browser.engine"
	KeyBrowserProfile      = "browser.profile"
	KeyBrowserExecPath     = "browser.exec_path"
	KeyBrowserPageTimeout  = "browser.page_timeout"
	KeyBrowserLoginWait    = "browser.login_wait"
	KeyBrowserClickTimeout = "browser.click_timeout"

	KeyCaptureEnabled      = "capture.enabled"
	KeyCaptureWatchDir     = "capture.watch_dir"
	KeyCapturePollInterval = "capture.poll_interval"
	KeyCaptureTimeout      = "capture.timeout"
	KeyCaptureOpenBrowser  = "capture.open_browser"
	KeyCaptureNotify       = "capture.notify"
)

// SecretContactEmail is the .secrets/ file supplying the contact address.
const SecretContactEmail = "contact-email"

// DefaultUserAgent is the product token sent with every request.
const DefaultUserAgent = "bibfetch/0.1"

const defaultMaxRetries = 3

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyOutputDir, "~/Desktop/Bibliography_PDFs")
	v.SetDefault(KeyUserAgent, DefaultUserAgent)
	v.SetDefault(KeyTimeout, 30*time.Second)
	v.SetDefault(KeyDelay, time.Second)
	v.SetDefault(KeyMaxRetries, defaultMaxRetries)
	v.SetDefault(KeyRetryBaseDelay, time.Second)
	v.SetDefault(KeyMaxCandidates, 5)
	v.SetDefault(KeyConcurrency, 2)
	v.SetDefault(KeyStrategies, types.DefaultStrategies)
	v.SetDefault(KeySearchBackend, types.SearchCrossref)
	v.SetDefault(KeyValidator, types.ValidatorHeader)
	v.SetDefault(KeyMinSize, 0)
	v.SetDefault(KeyJournal, "~/.config/bibfetch/journal.db")

	v.SetDefault(KeyBrowserEnabled, true)
	v.SetDefault(KeyBrowserHeadless, true)
	v.SetDefault(KeyBrowserEngine, types.EngineChrome)
	v.SetDefault(KeyBrowserPageTimeout, 60*time.Second)
	v.SetDefault(KeyBrowserLoginWait, time.Duration(0))
	v.SetDefault(KeyBrowserClickTimeout, 8*time.Second)

	v.SetDefault(KeyCaptureEnabled, true)
	v.SetDefault(KeyCaptureWatchDir, "~/Downloads")
	v.SetDefault(KeyCapturePollInterval, 2*time.Second)
	v.SetDefault(KeyCaptureTimeout, 10*time.Minute)
	v.SetDefault(KeyCaptureOpenBrowser, true)
	v.SetDefault(KeyCaptureNotify, true)
}

// Load reads the configuration from v, fills the contact address from
// secrets when none is configured, expands ~ in paths and validates the
// result.
func Load(v *viper.Viper, secrets map[string]string) (types.FetchConfig, error) {
	cfg := types.FetchConfig{
		HTTPConfig: types.HTTPConfig{
			Timeout:      v.GetDuration(KeyTimeout),
			UserAgent:    v.GetString(KeyUserAgent),
			ContactEmail: v.GetString(KeyContactEmail),
		},
		Politeness: types.PolitenessConfig{
			Delay:          v.GetDuration(KeyDelay),
			MaxRetries:     v.GetInt(KeyMaxRetries),
			RetryBaseDelay: v.GetDuration(KeyRetryBaseDelay),
		},
		OutputDir:     v.GetString(KeyOutputDir),
		Concurrency:   v.GetInt(KeyConcurrency),
		Strategies:    strategies(v.GetStringSlice(KeyStrategies)),
		SearchBackend: strings.ToLower(v.GetString(KeySearchBackend)),
		MaxCandidates: v.GetInt(KeyMaxCandidates),
		Validator:     strings.ToLower(v.GetString(KeyValidator)),
		MinSize:       v.GetInt64(KeyMinSize),
		Browser: types.BrowserConfig{
			Enabled:      v.GetBool(KeyBrowserEnabled),
			Headless:     v.GetBool(KeyBrowserHeadless),
			Engine:       strings.ToLower(v.GetString(KeyBrowserEngine)),
			ProfileDir:   v.GetString(KeyBrowserProfile),
			ExecPath:     v.GetString(KeyBrowserExecPath),
			PageTimeout:  v.GetDuration(KeyBrowserPageTimeout),
			LoginWait:    v.GetDuration(KeyBrowserLoginWait),
			ClickTimeout: v.GetDuration(KeyBrowserClickTimeout),
		},
		Capture: types.CaptureConfig{
			Enabled:      v.GetBool(KeyCaptureEnabled),
			WatchDir:     v.GetString(KeyCaptureWatchDir),
			PollInterval: v.GetDuration(KeyCapturePollInterval),
			Timeout:      v.GetDuration(KeyCaptureTimeout),
			OpenBrowser:  v.GetBool(KeyCaptureOpenBrowser),
			Notify:       v.GetBool(KeyCaptureNotify),
		},
		JournalPath: v.GetString(KeyJournal),
	}

	if cfg.ContactEmail == "" {
		cfg.ContactEmail = secrets[SecretContactEmail]
	}
	if cfg.Politeness.MaxRetries == 0 {
		cfg.Politeness.MaxRetries = defaultMaxRetries
	}

	var err error
	for _, p := range []*string{&cfg.OutputDir, &cfg.Capture.WatchDir, &cfg.Browser.ProfileDir, &cfg.JournalPath} {
		if *p, err = ExpandHome(*p); err != nil {
			return types.FetchConfig{}, err
		}
	}

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(cfg); err != nil {
		return types.FetchConfig{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// strategies accepts both a YAML list and a comma-separated flag value.
func strategies(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expanding %s: %w", path, err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
