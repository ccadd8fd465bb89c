package bridge

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/AltairaLabs/voicebridge/metrics/prometheus"
	"github.com/AltairaLabs/voicebridge/providers"
)

// registry allocates call identifiers and tracks the live provider
// sessions so shutdown can close them.
type registry struct {
	counter atomic.Int64

	mu    sync.Mutex
	calls map[string]providers.Session
}

func newRegistry() *registry {
	return &registry{calls: make(map[string]providers.Session)}
}

// nextCallID returns the next call identifier, of the form "call-N".
// Call IDs are unique per registry and appear in log lines and
// transcripts for correlation.
func (r *registry) nextCallID() string {
	return fmt.Sprintf("call-%d", r.counter.Add(1))
}

func (r *registry) add(callID string, session providers.Session) {
	r.mu.Lock()
	r.calls[callID] = session
	r.mu.Unlock()

	prometheus.RecordCallStart()
}

// remove drops the call and reports its duration. It is a no-op when the
// call was already removed, so the cleanup path can run from more than
// one place.
func (r *registry) remove(callID string, durationSeconds float64) {
	r.mu.Lock()
	_, ok := r.calls[callID]
	if ok {
		delete(r.calls, callID)
	}
	r.mu.Unlock()

	if ok {
		prometheus.RecordCallEnd(durationSeconds)
	}
}

// closeAll closes every live session. Used on server shutdown.
func (r *registry) closeAll() {
	r.mu.Lock()
	sessions := make([]providers.Session, 0, len(r.calls))
	for id := range r.calls {
		sessions = append(sessions, r.calls[id])
		delete(r.calls, id)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		_ = s.Close()
	}
}

func (r *registry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}
