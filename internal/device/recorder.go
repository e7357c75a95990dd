package device

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/drowningchild/dpmcore/internal/dpm"
)

// Call is one recorded callback invocation.
type Call struct {
	Device   string    `json:"device"`
	Phase    dpm.Phase `json:"phase"`
	Level    string    `json:"level"`
	Provider string    `json:"provider"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Err      string    `json:"error,omitempty"`
}

// Recorder is a thread-safe ordered log of simulated callbacks.
type Recorder struct {
	mu    sync.Mutex
	calls []Call
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) add(c Call) {
	r.mu.Lock()
	r.calls = append(r.calls, c)
	r.mu.Unlock()
}

// Calls returns the recorded calls ordered by start time.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	out := append([]Call(nil), r.calls...)
	r.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// Sequence returns device names in the order their callbacks for phase
// started. A device appears once per level it has.
func (r *Recorder) Sequence(phase dpm.Phase) []string {
	var names []string
	for _, c := range r.Calls() {
		if c.Phase == phase {
			names = append(names, c.Device)
		}
	}
	return names
}

// Reset clears the log.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.calls = nil
	r.mu.Unlock()
}

// Format renders the log one call per line, with offsets from the first
// call.
func (r *Recorder) Format() string {
	calls := r.Calls()
	if len(calls) == 0 {
		return ""
	}
	origin := calls[0].Start
	var b strings.Builder
	for _, c := range calls {
		fmt.Fprintf(&b, "%10s %-14s %-12s %-6s %-10s %s",
			c.Start.Sub(origin).Round(time.Microsecond),
			c.Phase, c.Device, c.Level, c.Provider, c.End.Sub(c.Start).Round(time.Microsecond))
		if c.Err != "" {
			fmt.Fprintf(&b, " error=%s", c.Err)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
