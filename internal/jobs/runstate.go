package jobs

import "sync"

// RunState is the shared flag set consulted cooperatively by every
// long-running loop. One instance guards one concurrently-manageable job
// slot; TryStart is what enforces the single-active-job rule.
type RunState struct {
	mu            sync.Mutex
	running       bool
	stopRequested bool
}

func NewRunState() *RunState {
	return &RunState{}
}

// TryStart transitions idle -> running. Returns false when a job is already
// running, which callers must treat as "do not start another".
func (s *RunState) TryStart() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	return true
}

// RequestStop signals the running job to stop at its next checkpoint. Has no
// effect while idle, so a stray stop cannot poison the next job.
func (s *RunState) RequestStop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.stopRequested = true
	}
}

// Finish clears running and stopRequested in the same critical section.
// Clearing them separately would open a window where stop is set while
// running is not, leaking a stale stop into the next TryStart.
func (s *RunState) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.stopRequested = false
}

func (s *RunState) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *RunState) ShouldStop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopRequested
}
