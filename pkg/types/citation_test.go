package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusResolving, true},
		{StatusResolving, StatusDownloading, true},
		{StatusDownloading, StatusCompleted, true},
		{StatusDownloading, StatusResolving, true},
		{StatusResolving, StatusManualCaptureWaiting, true},
		{StatusManualCaptureWaiting, StatusCompleted, true},
		{StatusManualCaptureWaiting, StatusSkipped, true},
		{StatusManualCaptureWaiting, StatusFailed, true},
		{StatusResolving, StatusFailed, true},
		{StatusPending, StatusCompleted, false},
		{StatusResolving, StatusPending, false},
		{StatusCompleted, StatusResolving, false},
		{StatusFailed, StatusPending, false},
		{StatusSkipped, StatusCompleted, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.CanTransition(tt.to))
		})
	}
}

func TestTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusSkipped.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusManualCaptureWaiting.Terminal())
}

func TestRecordComplete(t *testing.T) {
	rec := &CitationRecord{Index: 1, Status: StatusPending}

	err := rec.Complete("/tmp/x.pdf", nil)
	require.Error(t, err, "pending cannot complete directly")
	assert.Empty(t, rec.OutputPath)

	require.NoError(t, rec.Transition(StatusResolving))
	require.NoError(t, rec.Transition(StatusDownloading))
	require.NoError(t, rec.Complete("/tmp/x.pdf", &Locator{URL: "https://example.org/x.pdf"}))
	assert.Equal(t, StatusCompleted, rec.Status)
	assert.Equal(t, "/tmp/x.pdf", rec.OutputPath)
}

func TestRecordAbort(t *testing.T) {
	rec := &CitationRecord{Status: StatusDownloading}
	assert.True(t, rec.Abort())
	assert.Equal(t, StatusFailed, rec.Status)

	done := &CitationRecord{Status: StatusCompleted, OutputPath: "/tmp/x.pdf"}
	assert.False(t, done.Abort())
	assert.Equal(t, "/tmp/x.pdf", done.OutputPath)
}

func TestLanding(t *testing.T) {
	rec := &CitationRecord{URLs: []string{"https://example.org/a"}}
	assert.Equal(t, "https://example.org/a", rec.Landing())

	rec.DOI = "10.1000/xyz"
	assert.Equal(t, "https://doi.org/10.1000/xyz", rec.Landing())

	rec.LandingURL = "https://publisher.example/article/1"
	assert.Equal(t, "https://publisher.example/article/1", rec.Landing())
}

func TestUserAgentHeader(t *testing.T) {
	c := HTTPConfig{UserAgent: "bibfetch/0.1"}
	assert.Equal(t, "bibfetch/0.1", c.UserAgentHeader())
	c.ContactEmail = "me@example.org"
	assert.Equal(t, "bibfetch/0.1 (mailto:me@example.org)", c.UserAgentHeader())
}
