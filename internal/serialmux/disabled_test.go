package serialmux

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/page.turner/internal/monitoring"
)

func TestDisabledSerialMux_UnsubscribeClosesChannel(t *testing.T) {
	d := NewDisabledSerialMux()
	id, ch := d.Subscribe()

	done := make(chan struct{})
	go func() {
		for range ch {
		}
		close(done)
	}()

	d.Unsubscribe(id)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reader did not unblock after Unsubscribe")
	}
}

func TestDisabledSerialMux_CloseClosesAllChannels(t *testing.T) {
	d := NewDisabledSerialMux()
	_, a := d.Subscribe()
	_, b := d.Subscribe()

	if err := d.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	for _, ch := range []chan string{a, b} {
		if _, ok := <-ch; ok {
			t.Error("channel still open after Close")
		}
	}

	// Subscribing after Close hands back an already-closed channel.
	_, c := d.Subscribe()
	if _, ok := <-c; ok {
		t.Error("late subscriber channel should be closed")
	}
	if err := d.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestDisabledSerialMux_SendKeyRecords(t *testing.T) {
	var logged []string
	monitoring.SetLogger(func(format string, v ...interface{}) { logged = append(logged, format) })
	defer monitoring.SetLogger(nil)

	d := NewDisabledSerialMux()
	if err := d.SendKey(KeyNextPage); err != nil {
		t.Fatalf("SendKey() error = %v", err)
	}
	if err := d.SendKey('z'); err == nil {
		t.Error("SendKey('z') should fail")
	}
	if got := string(d.Keys()); got != "n" {
		t.Errorf("Keys() = %q, want %q", got, "n")
	}
	if len(logged) != 1 {
		t.Errorf("logged %d lines, want 1", len(logged))
	}
	if err := d.SendCommand("anything"); err != nil {
		t.Errorf("SendCommand() error = %v", err)
	}
}

func TestDisabledSerialMux_MonitorBlocksUntilCancel(t *testing.T) {
	d := NewDisabledSerialMux()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := d.Monitor(ctx); err != context.DeadlineExceeded {
		t.Errorf("Monitor() = %v, want DeadlineExceeded", err)
	}
}

func TestDisabledSerialMux_AdminRoute(t *testing.T) {
	d := NewDisabledSerialMux()
	d.SendKey(KeyPreviousPage)

	mux := http.NewServeMux()
	d.AttachAdminRoutes(mux)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/debug/serial-disabled", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "1 keys recorded") {
		t.Errorf("body = %q", w.Body.String())
	}
}
