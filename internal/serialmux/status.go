package serialmux

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/page.turner/internal/monitoring"
	"github.com/banshee-data/page.turner/internal/timeutil"
)

// RelayStatus summarises what the relay has reported over its debug output.
type RelayStatus struct {
	Started         bool      `json:"started"`
	Connected       bool      `json:"connected"`
	LastEvent       string    `json:"last_event,omitempty"`
	LastLine        string    `json:"last_line,omitempty"`
	LastSeen        time.Time `json:"last_seen,omitzero"`
	KeysAcked       uint64    `json:"keys_acked"`
	UnknownCommands uint64    `json:"unknown_commands"`
	Lines           uint64    `json:"lines"`
}

// StatusWatcher subscribes to a mux and keeps a RelayStatus current.
type StatusWatcher struct {
	mux   SerialMuxInterface
	clock timeutil.Clock

	mu     sync.Mutex
	status RelayStatus
}

// NewStatusWatcher returns a watcher for mux. A nil clock uses wall time.
func NewStatusWatcher(mux SerialMuxInterface, clock timeutil.Clock) *StatusWatcher {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &StatusWatcher{mux: mux, clock: clock}
}

// Run consumes relay lines until ctx is done or the mux closes the
// subscription.
func (w *StatusWatcher) Run(ctx context.Context) error {
	id, lines := w.mux.Subscribe()
	defer w.mux.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			w.Observe(line)
		}
	}
}

// Observe folds one relay line into the status.
func (w *StatusWatcher) Observe(line string) {
	event := ClassifyPayload(line)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.status.Lines++
	w.status.LastLine = line
	w.status.LastEvent = event
	w.status.LastSeen = w.clock.Now()

	switch event {
	case EventTypeStarting:
		w.status.Started = true
		w.status.Connected = false
	case EventTypeWaiting:
		w.status.Connected = false
		monitoring.Logf("relay: waiting for bluetooth host")
	case EventTypeReceived:
		// The relay only acts on commands once a host is paired.
		w.status.Connected = true
		w.status.KeysAcked++
	case EventTypeUnknownCommand:
		w.status.UnknownCommands++
		monitoring.Logf("relay: rejected command: %q", line)
	}
}

// Status returns a copy of the current status.
func (w *StatusWatcher) Status() RelayStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// AttachAdminRoutes serves the status as JSON at /debug/relay-status.
func (w *StatusWatcher) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("relay-status", "page-turn relay status", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(rw).Encode(w.Status()); err != nil {
			http.Error(rw, err.Error(), http.StatusInternalServerError)
		}
	})
}
