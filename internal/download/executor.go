// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package download retrieves resolved PDFs into the output directory. Every
// file is validated before it is committed under a collision-safe name
// derived from the citation label.
package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/pdiddy/bibfetch/internal/fetcherr"
	"github.com/pdiddy/bibfetch/internal/httputil"
	"github.com/pdiddy/bibfetch/pkg/types"
)

// maxCollisions bounds the _N suffix search.
const maxCollisions = 1000

// Executor downloads and places PDFs. It is safe for concurrent use; name
// reservation is serialized so concurrent citations never pick the same
// output file.
type Executor struct {
	Client    *httputil.Client
	OutputDir string
	Validator Validator

	mu       sync.Mutex
	reserved map[string]bool
}

// NewExecutor returns an executor writing into outputDir. A nil validator
// falls back to the header check.
func NewExecutor(client *httputil.Client, outputDir string, v Validator) *Executor {
	if v == nil {
		v = ValidatorFunc(CheckHeader)
	}
	return &Executor{
		Client:    client,
		OutputDir: outputDir,
		Validator: v,
		reserved:  make(map[string]bool),
	}
}

// Existing reports whether <label>.pdf is already in the output directory
// and validates. A run that finds it does not fetch the citation again.
// Files reserved or written by this run belong to another citation and never
// count.
func (e *Executor) Existing(rec *types.CitationRecord) (string, bool) {
	path := filepath.Join(e.OutputDir, rec.Label+".pdf")
	e.mu.Lock()
	held := e.reserved[path]
	e.mu.Unlock()
	if held {
		return "", false
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", false
	}
	if err := e.Validator.Validate(path); err != nil {
		return "", false
	}
	return path, true
}

// Download retrieves loc for rec and returns the committed output path.
// Remote content is streamed to a temp file in the output directory,
// validated, and renamed into place; File locators are validated and moved.
func (e *Executor) Download(ctx context.Context, rec *types.CitationRecord, loc types.Locator) (string, error) {
	if loc.File != "" {
		return e.Place(rec, loc.File)
	}
	if loc.URL == "" {
		return "", fetcherr.NoLink("download", "", "empty locator")
	}
	if err := os.MkdirAll(e.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}

	resp, err := e.Client.Get(ctx, loc.URL, "application/pdf")
	if err != nil {
		return "", fetcherr.Network("download", loc.URL, 0, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", fetcherr.Auth("download", loc.URL)
	case resp.StatusCode != http.StatusOK:
		return "", fetcherr.Network("download", loc.URL, resp.StatusCode, nil)
	}

	tmpFile, err := os.CreateTemp(e.OutputDir, ".bibfetch-*.part")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	_, copyErr := io.Copy(tmpFile, resp.Body)
	closeErr := tmpFile.Close()
	if copyErr != nil {
		os.Remove(tmpPath)
		return "", fetcherr.Network("download", loc.URL, 0, copyErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("closing temp file: %w", closeErr)
	}

	if err := e.Validator.Validate(tmpPath); err != nil {
		os.Remove(tmpPath)
		return "", err
	}
	return e.commit(rec, tmpPath)
}

// Place validates a local file (a browser download or an operator capture)
// and moves it into the output directory under the citation's name.
func (e *Executor) Place(rec *types.CitationRecord, src string) (string, error) {
	if err := e.Validator.Validate(src); err != nil {
		return "", err
	}
	if err := os.MkdirAll(e.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}
	return e.commit(rec, src)
}

// commit reserves a free name and moves src onto it.
func (e *Executor) commit(rec *types.CitationRecord, src string) (string, error) {
	dest, err := e.reserve(rec.Label)
	if err != nil {
		return "", err
	}
	if err := move(src, dest); err != nil {
		e.release(dest)
		return "", err
	}
	return dest, nil
}

// reserve picks <label>.pdf, <label>_1.pdf, ... skipping names that exist
// on disk or are held by another citation of this run.
func (e *Executor) reserve(label string) (string, error) {
	if label == "" {
		label = "citation"
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.reserved == nil {
		e.reserved = make(map[string]bool)
	}

	for i := 0; i < maxCollisions; i++ {
		name := label + ".pdf"
		if i > 0 {
			name = fmt.Sprintf("%s_%d.pdf", label, i)
		}
		path := filepath.Join(e.OutputDir, name)
		if e.reserved[path] {
			continue
		}
		if _, err := os.Lstat(path); err == nil {
			continue
		}
		e.reserved[path] = true
		return path, nil
	}
	return "", fmt.Errorf("no free file name for %s after %d attempts", label, maxCollisions)
}

func (e *Executor) release(path string) {
	e.mu.Lock()
	delete(e.reserved, path)
	e.mu.Unlock()
}

// move renames src to dest, falling back to copy and remove when the two
// live on different filesystems.
func move(src, dest string) error {
	if err := os.Rename(src, dest); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	tmpFile, err := os.CreateTemp(filepath.Dir(dest), ".bibfetch-*.part")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	_, copyErr := io.Copy(tmpFile, in)
	closeErr := tmpFile.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("copying %s: %v", src, firstErr(copyErr, closeErr))
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	in.Close()
	os.Remove(src)
	return nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
