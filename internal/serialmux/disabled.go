package serialmux

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/banshee-data/page.turner/internal/monitoring"
)

// DisabledSerialMux is a no-op SerialMux implementation used when no relay is
// attached (--serial ""). Page turns are logged and recorded instead of sent.
// Subscribers are tracked so their channels close deterministically on
// Unsubscribe() or Close().
type DisabledSerialMux struct {
	mu          sync.Mutex
	subscribers map[string]chan string
	keys        []byte
	closing     bool
}

func NewDisabledSerialMux() *DisabledSerialMux {
	return &DisabledSerialMux{
		subscribers: make(map[string]chan string),
	}
}

func (d *DisabledSerialMux) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string, subscriberBuffer)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closing {
		// If already closing, return a closed channel so callers don't block.
		close(ch)
		return id, ch
	}
	d.subscribers[id] = ch
	return id, ch
}

func (d *DisabledSerialMux) Unsubscribe(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.subscribers[id]; ok {
		close(ch)
		delete(d.subscribers, id)
	}
}

// SendKey records key without touching any hardware.
func (d *DisabledSerialMux) SendKey(key byte) error {
	if !ValidKey(key) {
		return fmt.Errorf("unsupported relay key %q", key)
	}
	d.mu.Lock()
	d.keys = append(d.keys, key)
	d.mu.Unlock()
	monitoring.Logf("relay disabled: would send %q", key)
	return nil
}

// Keys returns the keys passed to SendKey so far.
func (d *DisabledSerialMux) Keys() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.keys...)
}

func (d *DisabledSerialMux) SendCommand(string) error { return nil }

func (d *DisabledSerialMux) Monitor(ctx context.Context) error { <-ctx.Done(); return ctx.Err() }

func (d *DisabledSerialMux) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closing {
		return nil
	}
	d.closing = true
	for id, ch := range d.subscribers {
		close(ch)
		delete(d.subscribers, id)
	}
	return nil
}

func (d *DisabledSerialMux) AttachAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/debug/serial-disabled", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, "relay disabled, %d keys recorded", len(d.Keys()))
	})
}
