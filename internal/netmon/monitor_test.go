package netmon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

// scriptedProbe replays a fixed sequence of connectivity observations.
type scriptedProbe struct {
	states []bool
	i      int
}

func (p *scriptedProbe) Online(ctx context.Context) bool {
	if p.i >= len(p.states) {
		return p.states[len(p.states)-1]
	}
	s := p.states[p.i]
	p.i++
	return s
}

func TestReconnectFiresOncePerEdge(t *testing.T) {
	probe := &scriptedProbe{states: []bool{false, false, true, true, false, true}}
	m := New(probe)

	fired := 0
	m.OnReconnect(func() { fired++ })

	ctx := context.Background()
	for range probe.states {
		m.IsOnline(ctx)
	}

	// Two offline→online transitions in the script.
	if fired != 2 {
		t.Errorf("fired = %d, want 2", fired)
	}
}

func TestRepeatedOnlinePollsDoNotRefire(t *testing.T) {
	probe := &scriptedProbe{states: []bool{false, true, true, true, true}}
	m := New(probe)

	fired := 0
	m.OnReconnect(func() { fired++ })

	ctx := context.Background()
	for range probe.states {
		m.IsOnline(ctx)
	}

	if fired != 1 {
		t.Errorf("fired = %d, want 1", fired)
	}
}

func TestFirstObservationSetsBaselineWithoutFiring(t *testing.T) {
	// Starting online must not look like a reconnect.
	probe := &scriptedProbe{states: []bool{true, true}}
	m := New(probe)

	fired := 0
	m.OnReconnect(func() { fired++ })

	ctx := context.Background()
	m.IsOnline(ctx)
	m.IsOnline(ctx)

	if fired != 0 {
		t.Errorf("fired = %d, want 0", fired)
	}
}

func TestIsOnlineReturnsProbeResult(t *testing.T) {
	m := New(ProbeFunc(func(ctx context.Context) bool { return false }))
	if m.IsOnline(context.Background()) {
		t.Error("IsOnline = true with an offline probe")
	}

	m = New(ProbeFunc(func(ctx context.Context) bool { return true }))
	if !m.IsOnline(context.Background()) {
		t.Error("IsOnline = false with an online probe")
	}
}

func TestHTTPProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	// Any HTTP response at all means the network path works.
	p := NewHTTPProbe(srv.URL)
	if !p.Online(context.Background()) {
		t.Error("Online = false against a responding server")
	}

	srv.Close()
	if p.Online(context.Background()) {
		t.Error("Online = true against a closed server")
	}
}
