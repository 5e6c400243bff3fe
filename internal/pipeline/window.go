package pipeline

import "fmt"

// Window assembles capture blocks of any length into analysis windows of
// size samples, advancing by hop samples between windows.
type Window struct {
	buf  []int16
	fill int
	hop  int

	consumed uint64
}

// NewWindow returns a Window. hop must be in (0, size].
func NewWindow(size, hop int) (*Window, error) {
	if size <= 0 {
		return nil, fmt.Errorf("window size must be positive, got %d", size)
	}
	if hop <= 0 || hop > size {
		return nil, fmt.Errorf("hop must be in (0, %d], got %d", size, hop)
	}
	return &Window{buf: make([]int16, size), hop: hop}, nil
}

// Write appends samples and calls fn once for every window that completes.
// The slice passed to fn is only valid during the call. If fn returns
// false, Write stops and discards the rest of samples; it then returns
// false.
func (w *Window) Write(samples []int16, fn func(window []int16) bool) bool {
	for len(samples) > 0 {
		n := copy(w.buf[w.fill:], samples)
		w.fill += n
		w.consumed += uint64(n)
		samples = samples[n:]

		if w.fill < len(w.buf) {
			continue
		}
		ok := fn(w.buf)
		copy(w.buf, w.buf[w.hop:])
		w.fill -= w.hop
		if !ok {
			return false
		}
	}
	return true
}

// Consumed returns the number of samples written so far.
func (w *Window) Consumed() uint64 { return w.consumed }

// Size returns the window length.
func (w *Window) Size() int { return len(w.buf) }

// Hop returns the advance between windows.
func (w *Window) Hop() int { return w.hop }

// Reset drops any partial window.
func (w *Window) Reset() {
	w.fill = 0
	w.consumed = 0
}
