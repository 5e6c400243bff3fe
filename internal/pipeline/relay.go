package pipeline

import (
	"sync/atomic"

	"github.com/banshee-data/page.turner/internal/monitoring"
	"github.com/banshee-data/page.turner/internal/serialmux"
)

// KeySender delivers a key press to the page-turn relay.
type KeySender interface {
	SendKey(key byte) error
}

// RelaySink presses "next page" on the relay for every page turn.
type RelaySink struct {
	relay  KeySender
	sent   atomic.Uint64
	failed atomic.Uint64
}

func NewRelaySink(relay KeySender) *RelaySink {
	return &RelaySink{relay: relay}
}

func (r *RelaySink) Frame(*FrameRecord) {}

func (r *RelaySink) PageTurn(rec *FrameRecord, ev *TurnEvent) {
	if err := r.relay.SendKey(serialmux.KeyNextPage); err != nil {
		r.failed.Add(1)
		ev.Sent, ev.Err = false, err
		monitoring.Logf("relay: page %d turn at frame %d not sent: %v", ev.Page, rec.Frame, err)
		return
	}
	r.sent.Add(1)
	ev.Sent, ev.Err = true, nil
}

func (r *RelaySink) Finished(*FrameRecord) {}

// Sent returns the number of keys the relay accepted.
func (r *RelaySink) Sent() uint64 { return r.sent.Load() }

// Failed returns the number of keys that could not be written.
func (r *RelaySink) Failed() uint64 { return r.failed.Load() }
