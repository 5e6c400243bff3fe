package monitoring

import (
	"fmt"
	"log"
	"strings"
	"sync"
)

// Logger formats and emits one diagnostic line.
type Logger func(format string, v ...interface{})

// Logf is the diagnostic logger shared by the tracker, the pipeline and the
// relay link. It defaults to log.Printf; SetLogger redirects or mutes it.
var Logf Logger = log.Printf

// SetLogger replaces Logf. Passing nil mutes logging.
func SetLogger(f Logger) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Recorder keeps formatted log lines in memory. Install it with
// SetLogger(r.Logf) to check what a component reported.
type Recorder struct {
	mu    sync.Mutex
	lines []string
}

// Logf formats and stores one line.
func (r *Recorder) Logf(format string, v ...interface{}) {
	line := fmt.Sprintf(format, v...)
	r.mu.Lock()
	r.lines = append(r.lines, line)
	r.mu.Unlock()
}

// Lines returns the stored lines in order.
func (r *Recorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

// Matching returns the stored lines that start with prefix, e.g.
// "tracker:" or "pipeline:".
func (r *Recorder) Matching(prefix string) []string {
	var out []string
	for _, l := range r.Lines() {
		if strings.HasPrefix(l, prefix) {
			out = append(out, l)
		}
	}
	return out
}
