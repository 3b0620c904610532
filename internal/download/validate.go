// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package download

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ledongthuc/pdf"

	"github.com/pdiddy/bibfetch/internal/fetcherr"
	"github.com/pdiddy/bibfetch/pkg/types"
)

// headerWindow is how far into a file the %PDF- marker may appear.
const headerWindow = 1024

var pdfMagic = []byte("%PDF-")

// Validator decides whether a file on disk is an acceptable PDF.
type Validator interface {
	Validate(path string) error
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(path string) error

func (f ValidatorFunc) Validate(path string) error { return f(path) }

// HasPDFMagic reports whether b carries the %PDF- marker within the header
// window. Resolvers use it to sniff responses whose content type lies.
func HasPDFMagic(b []byte) bool {
	if len(b) > headerWindow {
		b = b[:headerWindow]
	}
	return bytes.Contains(b, pdfMagic)
}

// CheckHeader accepts files with %PDF- in their first 1024 bytes.
func CheckHeader(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fetcherr.Validation(path, err.Error())
	}
	defer f.Close()

	buf := make([]byte, headerWindow)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return fetcherr.Validation(path, err.Error())
	}
	if n == 0 {
		return fetcherr.Validation(path, "empty file")
	}
	if !HasPDFMagic(buf[:n]) {
		return fetcherr.Validation(path, "missing %PDF- header")
	}
	return nil
}

// CheckStructure runs CheckHeader and then parses the document, requiring
// a readable trailer and at least one page.
func CheckStructure(path string) (err error) {
	if err := CheckHeader(path); err != nil {
		return err
	}

	// The parser panics on some malformed object streams.
	defer func() {
		if r := recover(); r != nil {
			err = fetcherr.Validation(path, fmt.Sprintf("malformed PDF: %v", r))
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return fetcherr.Validation(path, "unreadable PDF: "+err.Error())
	}
	defer f.Close()

	if r.NumPage() < 1 {
		return fetcherr.Validation(path, "document has no pages")
	}
	return nil
}

// MinSize rejects files smaller than n bytes.
func MinSize(n int64) Validator {
	return ValidatorFunc(func(path string) error {
		info, err := os.Stat(path)
		if err != nil {
			return fetcherr.Validation(path, err.Error())
		}
		if info.Size() < n {
			return fetcherr.Validation(path, fmt.Sprintf("%d bytes is below the %d byte floor", info.Size(), n))
		}
		return nil
	})
}

// Chain runs validators in order and returns the first rejection.
func Chain(vs ...Validator) Validator {
	return ValidatorFunc(func(path string) error {
		for _, v := range vs {
			if err := v.Validate(path); err != nil {
				return err
			}
		}
		return nil
	})
}

// ForConfig builds the validator selected by cfg.Validator, preceded by
// the size floor when cfg.MinSize is positive.
func ForConfig(cfg types.FetchConfig) Validator {
	var vs []Validator
	if cfg.MinSize > 0 {
		vs = append(vs, MinSize(cfg.MinSize))
	}
	switch cfg.Validator {
	case types.ValidatorStructure:
		vs = append(vs, ValidatorFunc(CheckStructure))
	default:
		vs = append(vs, ValidatorFunc(CheckHeader))
	}
	return Chain(vs...)
}
