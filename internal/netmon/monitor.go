// Package netmon reports connectivity to the quoting API and raises an
// edge-triggered event when the device transitions from offline to
// online. The sync engine subscribes to that event; repeated polls while
// already connected never re-fire it.
package netmon

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Probe answers "can we reach the server right now?". Injected so tests
// can script connectivity transitions.
type Probe interface {
	Online(ctx context.Context) bool
}

// ProbeFunc adapts a function to the Probe interface.
type ProbeFunc func(ctx context.Context) bool

func (f ProbeFunc) Online(ctx context.Context) bool { return f(ctx) }

// HTTPProbe considers the device online when the target URL answers any
// HTTP response at all within the timeout. Connection errors mean offline.
type HTTPProbe struct {
	URL    string
	Client *http.Client
}

// NewHTTPProbe probes url with a short per-attempt timeout.
func NewHTTPProbe(url string) *HTTPProbe {
	return &HTTPProbe{
		URL:    url,
		Client: &http.Client{Timeout: 5 * time.Second},
	}
}

// Online implements Probe.
func (p *HTTPProbe) Online(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.URL, nil)
	if err != nil {
		return false
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	// Any response proves reachability; even a 5xx means the network is up.
	return true
}

// Monitor tracks connectivity state and notifies subscribers on the
// offline→online edge.
type Monitor struct {
	probe Probe

	mu       sync.Mutex
	online   bool
	observed bool
	subs     []func()
}

// New returns a Monitor using probe.
func New(probe Probe) *Monitor {
	return &Monitor{probe: probe}
}

// IsOnline probes connectivity now, records the observation, and fires
// reconnect callbacks if this poll observed the offline→online edge.
func (m *Monitor) IsOnline(ctx context.Context) bool {
	online := m.probe.Online(ctx)

	m.mu.Lock()
	wasOnline, hadObservation := m.online, m.observed
	m.online = online
	m.observed = true
	var fire []func()
	if online && hadObservation && !wasOnline {
		fire = append(fire, m.subs...)
	}
	m.mu.Unlock()

	if len(fire) > 0 {
		slog.Info("network reconnected")
	}
	for _, fn := range fire {
		fn()
	}
	return online
}

// OnReconnect registers fn to run exactly once per disconnected→connected
// transition.
func (m *Monitor) OnReconnect(fn func()) {
	m.mu.Lock()
	m.subs = append(m.subs, fn)
	m.mu.Unlock()
}

// Run polls connectivity every interval until ctx is cancelled. The first
// poll establishes the baseline state without firing callbacks.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.IsOnline(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.IsOnline(ctx)
		}
	}
}
