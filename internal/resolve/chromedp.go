// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package resolve

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"

	"github.com/pdiddy/bibfetch/internal/download"
	"github.com/pdiddy/bibfetch/internal/fetcherr"
	"github.com/pdiddy/bibfetch/pkg/types"
)

const (
	defaultPageTimeout  = 60 * time.Second
	defaultClickTimeout = 8 * time.Second

	// maxClicks bounds how many affordances one page gets.
	maxClicks = 8
)

// listPDFAffordances tags every element that may yield the PDF with a
// data-bibfetch index and returns their descriptions in the order they are
// to be clicked: the document itself when it is a PDF, the citation_pdf_url
// target, links to .pdf files, download links, then buttons and links whose
// label mentions PDF, download or full text.
const listPDFAffordances = `(function () {
  const out = [];
  const seen = new Set();
  function add(el, what) {
    if (seen.has(el)) return;
    seen.add(el);
    el.setAttribute('data-bibfetch', String(out.length));
    out.push(what);
  }
  function synth(href, what) {
    const a = document.createElement('a');
    a.href = href;
    a.download = '';
    a.style.display = 'none';
    document.body.appendChild(a);
    add(a, what + ' ' + a.href);
  }
  if (document.contentType === 'application/pdf') {
    synth(location.href, 'self');
  }
  const meta = document.querySelector('meta[name="citation_pdf_url"]');
  if (meta && meta.content) {
    synth(meta.content, 'meta');
  }
  const els = Array.from(document.querySelectorAll('a[href], a[download], button'));
  const label = e => [e.textContent, e.title, e.getAttribute('aria-label')].join(' ').replace(/\s+/g, ' ').trim();
  els.filter(e => /\.pdf(\?|#|$)/i.test(e.getAttribute('href') || '')).forEach(e => add(e, 'pdf link ' + e.href));
  els.filter(e => e.hasAttribute('download')).forEach(e => add(e, 'download link ' + (e.href || '')));
  els.filter(e => /\bpdf\b/i.test(label(e))).forEach(e => add(e, e.tagName.toLowerCase() + ' "' + label(e).slice(0, 40) + '"'));
  els.filter(e => /\b(download|full text)\b/i.test(label(e))).forEach(e => add(e, e.tagName.toLowerCase() + ' "' + label(e).slice(0, 40) + '"'));
  return out;
})()`

// clickAffordance clicks the element listPDFAffordances tagged with the
// given index and reports whether it was still on the page.
const clickAffordance = `(function (i) {
  const el = document.querySelector('[data-bibfetch="' + i + '"]');
  if (!el) return false;
  el.click();
  return true;
})(%d)`

// engineBinaries lists executables to look for per engine. Chrome is left
// to chromedp's own discovery.
var engineBinaries = map[string][]string{
	types.EngineEdge: {
		"microsoft-edge", "microsoft-edge-stable", "msedge",
		"/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge",
		`C:\Program Files (x86)\Microsoft\Edge\Application\msedge.exe`,
		`C:\Program Files\Microsoft\Edge\Application\msedge.exe`,
	},
	types.EngineChromium: {
		"chromium", "chromium-browser",
		"/Applications/Chromium.app/Contents/MacOS/Chromium",
	},
}

// ChromeDriver drives a Chromium-family browser through the DevTools
// protocol. Downloads land in the directory given to Fetch, named by the
// browser's download GUID.
type ChromeDriver struct {
	Config types.BrowserConfig
}

func (d *ChromeDriver) Fetch(ctx context.Context, pageURL, dir string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", d.Config.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if path := ExecPath(d.Config); path != "" {
		opts = append(opts, chromedp.ExecPath(path))
	}
	if d.Config.ProfileDir != "" {
		opts = append(opts, chromedp.UserDataDir(d.Config.ProfileDir))
	}

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	timeout := d.Config.PageTimeout
	if timeout <= 0 {
		timeout = defaultPageTimeout
	}
	browserCtx, cancel = context.WithTimeout(browserCtx, timeout+d.Config.LoginWait)
	defer cancel()

	downloads := make(chan string, maxClicks+1)
	chromedp.ListenTarget(browserCtx, func(ev any) {
		if e, ok := ev.(*browser.EventDownloadProgress); ok && e.State == browser.DownloadProgressStateCompleted {
			select {
			case downloads <- e.GUID:
			default:
			}
		}
	})

	err := chromedp.Run(browserCtx,
		browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorAllowAndName).
			WithDownloadPath(dir).
			WithEventsEnabled(true),
		chromedp.Navigate(pageURL),
	)
	if err != nil {
		// Navigating straight to a file aborts the page load and starts a download.
		if !strings.Contains(err.Error(), "net::ERR_ABORTED") {
			return "", browserErr(pageURL, err)
		}
		path, werr := awaitPDF(browserCtx, downloads, dir, timeout)
		if werr != nil {
			return "", browserErr(pageURL, werr)
		}
		return path, nil
	}

	if d.Config.LoginWait > 0 {
		if err := chromedp.Run(browserCtx, chromedp.Sleep(d.Config.LoginWait)); err != nil {
			return "", browserErr(pageURL, err)
		}
	}

	var found []string
	if err := chromedp.Run(browserCtx,
		chromedp.WaitReady("body"),
		chromedp.Evaluate(listPDFAffordances, &found),
	); err != nil {
		return "", browserErr(pageURL, err)
	}

	click := func(i int) (bool, error) {
		var ok bool
		err := chromedp.Run(browserCtx, chromedp.Evaluate(fmt.Sprintf(clickAffordance, i), &ok))
		return ok, err
	}
	clickTimeout := d.Config.ClickTimeout
	if clickTimeout <= 0 {
		clickTimeout = defaultClickTimeout
	}
	path, err := clickThrough(browserCtx, len(found), click, downloads, dir, clickTimeout)
	if err == nil {
		return path, nil
	}
	if browserCtx.Err() != nil {
		return "", browserErr(pageURL, browserCtx.Err())
	}

	var loc string
	_ = chromedp.Run(browserCtx, chromedp.Location(&loc))
	if IsLoginURL(parseURL(loc)) {
		return "", fetcherr.Auth("browser", loc)
	}
	if len(found) == 0 {
		return "", fetcherr.NoLink("browser", pageURL, "page offers no PDF affordance")
	}
	return "", fetcherr.NoLink("browser", pageURL, fmt.Sprintf("%d affordance(s) tried, none produced a PDF", min(len(found), maxClicks)))
}

// errNoPDF means a click produced no PDF download in time.
var errNoPDF = errors.New("no PDF download")

// clickThrough clicks affordances 0..n-1 in order until one yields a PDF
// download in dir. Each click gets clickTimeout; downloads that are not PDFs
// (citation exports, HTML) are deleted and the next affordance is tried.
func clickThrough(ctx context.Context, n int, click func(int) (bool, error), downloads <-chan string, dir string, clickTimeout time.Duration) (string, error) {
	if n > maxClicks {
		n = maxClicks
	}
	for i := 0; i < n; i++ {
		ok, err := click(i)
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if err != nil || !ok {
			continue
		}
		path, err := awaitPDF(ctx, downloads, dir, clickTimeout)
		if err == nil {
			return path, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	return "", errNoPDF
}

// awaitPDF waits up to timeout for the next completed download and returns
// its path when it is a PDF.
func awaitPDF(ctx context.Context, downloads <-chan string, dir string, timeout time.Duration) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case guid := <-downloads:
		path := filepath.Join(dir, guid)
		if isPDFFile(path) {
			return path, nil
		}
		os.Remove(path)
		return "", errNoPDF
	case <-timer.C:
		return "", errNoPDF
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func isPDFFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	head := make([]byte, 1024)
	n, _ := io.ReadFull(f, head)
	return download.HasPDFMagic(head[:n])
}

func browserErr(pageURL string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fetcherr.Network("browser", pageURL, 0, err)
}

// ExecPath returns the browser binary for cfg: the explicit override, or
// the first installed binary of the configured engine. Empty means let
// chromedp find Chrome.
func ExecPath(cfg types.BrowserConfig) string {
	if cfg.ExecPath != "" {
		return cfg.ExecPath
	}
	for _, name := range engineBinaries[cfg.Engine] {
		if filepath.IsAbs(name) {
			if _, err := os.Stat(name); err == nil {
				return name
			}
			continue
		}
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	return ""
}
