package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/randybritsch/c4-mcp-app-sub000/domain"
	"github.com/randybritsch/c4-mcp-app-sub000/domain/entities"
)

func TestCollectors(t *testing.T) {
	c := New(prometheus.NewRegistry())

	c.ConnectionOpened()
	c.ConnectionOpened()
	c.ConnectionClosed()
	if got := testutil.ToFloat64(c.ActiveConnections); got != 1 {
		t.Errorf("active connections = %v, want 1", got)
	}

	c.ConnectionRejected("max_connections")
	if got := testutil.ToFloat64(c.RejectedConnections.WithLabelValues("max_connections")); got != 1 {
		t.Errorf("rejected = %v, want 1", got)
	}

	c.CommandFinished(entities.SourceVoice, "complete")
	c.CommandFinished(entities.SourceVoice, "complete")
	if got := testutil.ToFloat64(c.Commands.WithLabelValues("voice", "complete")); got != 2 {
		t.Errorf("commands = %v, want 2", got)
	}

	c.ExternalCall("mcp", 20*time.Millisecond, nil)
	c.ExternalCall("mcp", time.Second, domain.NewError(domain.KindTimeout, domain.CodeMCPTimeout, "timed out"))
	if got := testutil.ToFloat64(c.ExternalCalls.WithLabelValues("mcp", "ok")); got != 1 {
		t.Errorf("ok calls = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.ExternalCalls.WithLabelValues("mcp", domain.CodeMCPTimeout)); got != 1 {
		t.Errorf("timeout calls = %v, want 1", got)
	}

	c.Envelope("in", "audio-chunk")
	if got := testutil.ToFloat64(c.Envelopes.WithLabelValues("in", "audio-chunk")); got != 1 {
		t.Errorf("envelopes = %v, want 1", got)
	}
}

func TestNewOnSeparateRegistries(t *testing.T) {
	New(prometheus.NewRegistry())
	New(prometheus.NewRegistry())
}
