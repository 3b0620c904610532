// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/bibfetch/internal/capture"
	"github.com/pdiddy/bibfetch/internal/config"
	"github.com/pdiddy/bibfetch/internal/download"
	"github.com/pdiddy/bibfetch/internal/httputil"
	"github.com/pdiddy/bibfetch/internal/journal"
	"github.com/pdiddy/bibfetch/internal/parse"
	"github.com/pdiddy/bibfetch/internal/queue"
	"github.com/pdiddy/bibfetch/internal/report"
	"github.com/pdiddy/bibfetch/internal/resolve"
	"github.com/pdiddy/bibfetch/pkg/types"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [file|-]",
	Short: "Download every citation in a bibliography",
	Long: `Fetch parses a bibliography (from --text, a file, or - for stdin), resolves
each citation to a PDF and saves it as <label>.pdf in the output directory.
Files already present are skipped. Citations that automation cannot fetch
wait for a manual download in the watch directory; type "skip N" to give up
on citation N.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFetch,
}

// flagKeys binds fetch flags to configuration keys.
var flagKeys = map[string]string{
	"output-dir":      config.KeyOutputDir,
	"email":           config.KeyContactEmail,
	"timeout":         config.KeyTimeout,
	"delay":           config.KeyDelay,
	"max-retries":     config.KeyMaxRetries,
	"max-candidates":  config.KeyMaxCandidates,
	"concurrency":     config.KeyConcurrency,
	"strategies":      config.KeyStrategies,
	"search-backend":  config.KeySearchBackend,
	"validator":       config.KeyValidator,
	"min-size":        config.KeyMinSize,
	"browser":         config.KeyBrowserEnabled,
	"headless":        config.KeyBrowserHeadless,
	"engine":          config.KeyBrowserEngine,
	"profile":         config.KeyBrowserProfile,
	"login-wait":      config.KeyBrowserLoginWait,
	"click-timeout":   config.KeyBrowserClickTimeout,
	"capture":         config.KeyCaptureEnabled,
	"watch-dir":       config.KeyCaptureWatchDir,
	"capture-timeout": config.KeyCaptureTimeout,
	"open-browser":    config.KeyCaptureOpenBrowser,
}

func init() {
	f := fetchCmd.Flags()
	f.String("text", "", "bibliography text (instead of a file)")
	f.String("format", report.FormatText, "summary format: text, yaml or json")
	f.Bool("dry-run", false, "parse and list citations without fetching")
	f.Bool("quiet", false, "print status changes only, not every attempt")

	f.String("output-dir", "", "directory for downloaded PDFs (default ~/Desktop/Bibliography_PDFs)")
	f.String("email", "", "contact address for Crossref/OpenAlex polite pools")
	f.Duration("timeout", 0, "HTTP request timeout (default 30s)")
	f.Duration("delay", 0, "minimum delay between requests to one host (default 1s)")
	f.Int("max-retries", 0, "retries for transient failures (default 3)")
	f.Int("max-candidates", 0, "search results requested per citation (default 5)")
	f.Int("concurrency", 0, "citations resolved at once (default 2)")
	f.StringSlice("strategies", nil, "resolution order (default direct,openaccess,search,browser)")
	f.String("search-backend", "", "bibliographic search: crossref or openalex")
	f.String("validator", "", "PDF check: header or structure")
	f.Int64("min-size", 0, "reject PDFs smaller than this many bytes")
	f.Bool("browser", true, "enable the browser strategy")
	f.Bool("headless", true, "run the automated browser headless")
	f.String("engine", "", "browser engine: chrome, edge or chromium")
	f.String("profile", "", "browser profile directory to reuse logins from")
	f.Duration("login-wait", 0, "pause after a page loads so you can sign in (use with --headless=false)")
	f.Duration("click-timeout", 0, "how long each clicked download link gets to deliver a PDF (default 8s)")
	f.Bool("capture", true, "wait for manual downloads when automation fails")
	f.String("watch-dir", "", "directory the browser saves downloads into (default ~/Downloads)")
	f.Duration("capture-timeout", 0, "how long to wait for each manual download (default 10m)")
	f.Bool("open-browser", true, "open landing pages for manual download")

	for flag, key := range flagKeys {
		viper.BindPFlag(key, f.Lookup(flag))
	}

	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	text, fromStdin, err := readInput(cmd, args)
	if err != nil {
		return err
	}
	records, err := parse.Parse(text)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if dry, _ := cmd.Flags().GetBool("dry-run"); dry {
		printRecords(out, records)
		return nil
	}

	cfg, err := config.Load(viper.GetViper(), loadedSecrets)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	if cfg.ContactEmail == "" {
		fmt.Fprintln(os.Stderr, "warning: no contact email configured; metadata APIs may throttle requests (set --email or .secrets/contact-email)")
	}

	client := httputil.NewClient(cfg, httputil.NewGate(cfg.Politeness.Delay))
	exec := download.NewExecutor(client, cfg.OutputDir, download.ForConfig(cfg))

	scratch, err := os.MkdirTemp("", "bibfetch-")
	if err != nil {
		return fmt.Errorf("creating scratch directory: %w", err)
	}
	defer os.RemoveAll(scratch)

	deps := resolve.Deps{Client: client, Config: cfg, ScratchDir: scratch}
	if cfg.Browser.Enabled {
		// Chrome is located by chromedp itself.
		if cfg.Browser.Engine != types.EngineChrome && resolve.ExecPath(cfg.Browser) == "" {
			fmt.Fprintf(os.Stderr, "warning: no %s browser found; browser strategy disabled\n", cfg.Browser.Engine)
		} else {
			deps.Driver = &resolve.ChromeDriver{Config: cfg.Browser}
		}
	}
	chain, err := resolve.Build(cfg.Strategies, deps)
	if err != nil {
		return err
	}

	// Machine-readable summaries keep stdout to themselves.
	format, _ := cmd.Flags().GetString("format")
	progress := out
	if format != "" && format != report.FormatText {
		progress = cmd.ErrOrStderr()
	}
	quiet, _ := cmd.Flags().GetBool("quiet")
	ctrl := &queue.Controller{
		Pipeline:    &resolve.Pipeline{Resolvers: chain, Downloader: exec},
		Store:       exec,
		Concurrency: cfg.Concurrency,
		Observers:   []queue.Observer{&report.Logger{W: progress, Quiet: quiet}},
	}

	if cfg.Capture.Enabled {
		if err := os.MkdirAll(cfg.Capture.WatchDir, 0o755); err != nil {
			return fmt.Errorf("creating watch directory: %w", err)
		}
		sup := capture.New(cfg.Capture, exec)
		ctrl.Capture = sup
		con := &console{out: progress, sup: sup, records: records, watchDir: cfg.Capture.WatchDir}
		ctrl.Observers = append(ctrl.Observers, con)
		if !fromStdin {
			go con.serve(os.Stdin)
		}
	}

	var jr *journal.Journal
	if cfg.JournalPath != "" {
		jr, err = journal.Open(cfg.JournalPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: run journal disabled: %v\n", err)
		} else {
			defer jr.Close()
			if _, err := jr.StartRun(time.Now(), len(records)); err != nil {
				fmt.Fprintf(os.Stderr, "warning: %v\n", err)
				jr = nil
			} else {
				ctrl.Observers = append(ctrl.Observers, jr)
			}
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(progress, "Fetching %d citation(s) into %s\n", len(records), cfg.OutputDir)
	sum := ctrl.Run(ctx, records)

	if err := report.Write(out, format, sum); err != nil {
		return err
	}
	if jr != nil {
		if err := jr.FinishRun(sum); err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}
	}

	if sum.HasFailures() {
		return fmt.Errorf("%d citation(s) failed", sum.Failed)
	}
	return nil
}

// readInput returns the bibliography text and whether it came from stdin.
func readInput(cmd *cobra.Command, args []string) (string, bool, error) {
	text, _ := cmd.Flags().GetString("text")
	switch {
	case text != "" && len(args) > 0:
		return "", false, fmt.Errorf("use either --text or a file argument, not both")
	case text != "":
		return text, false, nil
	case len(args) == 0:
		return "", false, fmt.Errorf("provide a bibliography file, - for stdin, or --text")
	case args[0] == "-":
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", true, fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), true, nil
	default:
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", false, fmt.Errorf("reading %s: %w", args[0], err)
		}
		return string(data), false, nil
	}
}

func printRecords(w io.Writer, records []*types.CitationRecord) {
	for _, rec := range records {
		fmt.Fprintf(w, "(%d) %s\n", rec.Index, rec.Label)
		switch {
		case rec.DuplicateOf != "":
			fmt.Fprintf(w, "    duplicate DOI, will be skipped\n")
		case rec.DOI != "":
			fmt.Fprintf(w, "    doi: %s\n", rec.DOI)
		}
		for _, d := range rec.IgnoredDOIs {
			fmt.Fprintf(w, "    ignored doi: %s\n", d)
		}
		for _, u := range rec.URLs {
			fmt.Fprintf(w, "    url: %s\n", u)
		}
	}
	fmt.Fprintf(w, "\n%d citation(s)\n", len(records))
}
