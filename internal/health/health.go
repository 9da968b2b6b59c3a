package health

import (
	"net/http"
	"sync/atomic"
)

// State tracks the pipeline phase for the liveness endpoint of long runs.
type State struct {
	phase atomic.Value // string
}

// NewState starts in the "starting" phase.
func NewState() *State {
	s := &State{}
	s.phase.Store("starting")
	return s
}

// SetPhase records the current pipeline phase (ingest, coarse, fine,
// triangulate, done).
func (s *State) SetPhase(phase string) {
	s.phase.Store(phase)
}

// Healthz returns 200 with the current phase.
func (s *State) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(s.phase.Load().(string) + "\n"))
}
