package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/MimeLyc/rembg-studio/pkg/log"
)

// SessionStatus is a snapshot of the manager's current state.
type SessionStatus struct {
	ModelID string `json:"model"`
	UseGPU  bool   `json:"use_gpu"`
	Ready   bool   `json:"ready"`
}

// Manager owns the single live engine session. At most one session exists at
// a time; it is recreated only when the requested model or acceleration mode
// differs from the current one. All transitions are serialized by one mutex.
type Manager struct {
	engine Engine

	mu      sync.Mutex
	session Session
	modelID string
	useGPU  bool
}

func NewManager(engine Engine) *Manager {
	return &Manager{engine: engine}
}

// sessionAttempt pairs a provider preference list with the acceleration mode
// it represents when it succeeds.
type sessionAttempt struct {
	providers []Provider
	gpu       bool
}

// attemptList builds the ordered acceleration configurations to try. GPU
// requests get exactly one CPU fallback entry; the loop over this list is
// the whole retry policy, there is no recursion.
func attemptList(useGPU bool) []sessionAttempt {
	if !useGPU {
		return []sessionAttempt{
			{providers: []Provider{CPUProvider()}, gpu: false},
		}
	}
	return []sessionAttempt{
		{providers: []Provider{CUDAProvider(), CPUProvider()}, gpu: true},
		{providers: []Provider{CPUProvider()}, gpu: false},
	}
}

// Configure ensures a session matching (modelID, useGPU) exists. Idempotent:
// a matching live session is kept as-is. Otherwise any existing session is
// dropped and creation is attempted with the requested acceleration, falling
// back to CPU once if the accelerated attempt fails.
func (m *Manager) Configure(ctx context.Context, modelID string, useGPU bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil && m.modelID == modelID && m.useGPU == useGPU {
		return nil
	}

	if m.session != nil {
		log.Debug("Recreating session: model %q -> %q, gpu %v -> %v",
			m.modelID, modelID, m.useGPU, useGPU)
		m.dropLocked()
	}

	var lastErr error
	for _, attempt := range attemptList(useGPU) {
		session, err := m.engine.NewSession(ctx, modelID, attempt.providers)
		if err != nil {
			lastErr = err
			if attempt.gpu {
				log.Warn("GPU session creation failed for model %s, attempting CPU fallback: %v", modelID, err)
			} else {
				log.Error("Session creation failed for model %s: %v", modelID, err)
			}
			continue
		}

		m.session = session
		m.modelID = modelID
		m.useGPU = attempt.gpu
		acceleration := "CPU"
		if attempt.gpu {
			acceleration = "GPU"
		}
		log.Info("%s session ready for model %s", acceleration, modelID)
		return nil
	}

	return fmt.Errorf("create session for model %s: %w", modelID, lastErr)
}

// Handle returns the current session, or nil when not ready. Never blocks on
// anything but the state mutex.
func (m *Manager) Handle() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Ready reports whether a live session exists.
func (m *Manager) Ready() bool {
	return m.Handle() != nil
}

// Teardown releases the session reference. Safe to call repeatedly.
func (m *Manager) Teardown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != nil {
		log.Debug("Tearing down engine session for model %s", m.modelID)
		m.dropLocked()
	}
}

func (m *Manager) dropLocked() {
	m.session = nil
	m.modelID = ""
	m.useGPU = false
}

func (m *Manager) Status() SessionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return SessionStatus{
		ModelID: m.modelID,
		UseGPU:  m.useGPU,
		Ready:   m.session != nil,
	}
}
