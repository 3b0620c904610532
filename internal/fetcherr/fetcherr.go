// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fetcherr defines the error taxonomy shared by the parser,
// resolvers, download executor and capture supervisor, and maps errors to
// attempt outcomes.
package fetcherr

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/pdiddy/bibfetch/pkg/types"
)

// Kind classifies a failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindParse
	KindNetwork
	KindNoLink
	KindAuth
	KindValidation
	KindWatcherTimeout
)

func (k Kind) String() string {
	switch k {
	case KindParse:
		return "ParseError"
	case KindNetwork:
		return "NetworkError"
	case KindNoLink:
		return "NoLinkFound"
	case KindAuth:
		return "AuthRequired"
	case KindValidation:
		return "ValidationError"
	case KindWatcherTimeout:
		return "WatcherTimeout"
	default:
		return "Unknown"
	}
}

// Error is a classified failure. Op names the operation ("openalex lookup",
// "download"), URL the remote resource if any.
type Error struct {
	Kind       Kind
	Op         string
	URL        string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.URL != "" {
		msg += " (" + e.URL + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinel errors by kind, so errors.Is(err, ErrNoLink) holds for
// any *Error of KindNoLink.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.URL == "" && t.Err == nil && t.Message == "" && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrParse          = &Error{Kind: KindParse}
	ErrNetwork        = &Error{Kind: KindNetwork}
	ErrNoLink         = &Error{Kind: KindNoLink}
	ErrAuth           = &Error{Kind: KindAuth}
	ErrValidation     = &Error{Kind: KindValidation}
	ErrWatcherTimeout = &Error{Kind: KindWatcherTimeout}
)

// Parse returns a ParseError.
func Parse(msg string) error {
	return &Error{Kind: KindParse, Op: "parse", Message: msg}
}

// Network wraps a transport failure or unexpected HTTP status.
func Network(op, url string, status int, err error) error {
	e := &Error{Kind: KindNetwork, Op: op, URL: url, StatusCode: status, Err: err}
	if status != 0 && err == nil {
		e.Message = fmt.Sprintf("HTTP %d", status)
	}
	return e
}

// NoLink reports a reachable resource without a PDF affordance.
func NoLink(op, url, msg string) error {
	return &Error{Kind: KindNoLink, Op: op, URL: url, Message: msg}
}

// Auth reports a login or paywall redirect.
func Auth(op, url string) error {
	return &Error{Kind: KindAuth, Op: op, URL: url, Message: "login or paywall"}
}

// Validation reports content that is not a valid PDF.
func Validation(path, msg string) error {
	return &Error{Kind: KindValidation, Op: "validate", URL: path, Message: msg}
}

// WatcherTimeout reports a manual capture that exceeded its deadline.
func WatcherTimeout(dir string, err error) error {
	return &Error{Kind: KindWatcherTimeout, Op: "manual capture", URL: dir, Err: err}
}

// KindOf returns the kind of err, KindUnknown for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Transient reports whether retrying err may succeed: timeouts, connection
// failures, and network errors carrying 429 or a 5xx gateway status.
func Transient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var e *Error
	if errors.As(err, &e) && e.Kind == KindNetwork && e.StatusCode != 0 {
		switch e.StatusCode {
		case 429, 502, 503, 504:
			return true
		default:
			return false
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// Outcome maps err to an attempt outcome.
func Outcome(err error) types.Outcome {
	if err == nil {
		return types.OutcomeSuccess
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.OutcomeTimeout
	}
	switch KindOf(err) {
	case KindNoLink:
		return types.OutcomeNoLinkFound
	case KindAuth:
		return types.OutcomeAuthRequired
	case KindValidation:
		return types.OutcomeInvalidPDF
	case KindWatcherTimeout:
		return types.OutcomeTimeout
	default:
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return types.OutcomeTimeout
		}
		return types.OutcomeNetworkError
	}
}
