// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetcherr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pdiddy/bibfetch/pkg/types"
)

func TestIsMatchesByKind(t *testing.T) {
	err := NoLink("direct", "https://example.org", "no pdf hints")
	assert.True(t, errors.Is(err, ErrNoLink))
	assert.False(t, errors.Is(err, ErrNetwork))

	wrapped := fmt.Errorf("strategy failed: %w", Auth("direct", "https://idp.example.org/login"))
	assert.True(t, errors.Is(wrapped, ErrAuth))
	assert.Equal(t, KindAuth, KindOf(wrapped))
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want types.Outcome
	}{
		{"nil", nil, types.OutcomeSuccess},
		{"no link", NoLink("x", "", ""), types.OutcomeNoLinkFound},
		{"auth", Auth("x", ""), types.OutcomeAuthRequired},
		{"validation", Validation("/tmp/a", "missing header"), types.OutcomeInvalidPDF},
		{"watcher", WatcherTimeout("/tmp", nil), types.OutcomeTimeout},
		{"http 404", Network("x", "u", 404, nil), types.OutcomeNetworkError},
		{"deadline", Network("x", "u", 0, context.DeadlineExceeded), types.OutcomeTimeout},
		{"plain", errors.New("boom"), types.OutcomeNetworkError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Outcome(tt.err))
		})
	}
}

func TestTransient(t *testing.T) {
	assert.True(t, Transient(Network("x", "u", 503, nil)))
	assert.True(t, Transient(Network("x", "u", 429, nil)))
	assert.False(t, Transient(Network("x", "u", 404, nil)))
	assert.False(t, Transient(NoLink("x", "u", "")))
	assert.False(t, Transient(context.Canceled))
	assert.True(t, Transient(&net.OpError{Op: "dial", Err: errors.New("connection refused")}))
	assert.False(t, Transient(nil))
}

func TestErrorMessage(t *testing.T) {
	err := Network("openalex lookup", "https://api.openalex.org/works/x", 500, nil)
	assert.Equal(t, "openalex lookup: NetworkError: HTTP 500 (https://api.openalex.org/works/x)", err.Error())
}
