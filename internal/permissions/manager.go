package permissions

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DecisionTimeout bounds how long an interactive request waits for the user.
const DecisionTimeout = 120 * time.Second

// Decision resolves a Request.
type Decision int

const (
	Approved Decision = iota
	Denied
	TimedOut
)

func (d Decision) String() string {
	switch d {
	case Approved:
		return "approved"
	case Denied:
		return "denied"
	default:
		return "timeout"
	}
}

// Request describes one tool invocation awaiting arbitration.
type Request struct {
	ID        string
	Tool      string
	Target    string
	Level     Level
	Params    map[string]any
	CreatedAt time.Time
}

// Policy is the mutable arbitration state.
type Policy struct {
	// AutoApproveAll approves every request without asking.
	AutoApproveAll bool
	// Allowlist holds tool names approved without asking.
	Allowlist map[string]struct{}
}

// Manager resolves requests against policy, queueing the rest for an
// interactive decision.
type Manager struct {
	mu      sync.Mutex
	policy  Policy
	pending map[string]chan Decision

	// notify receives requests needing interactive resolution. The owner of
	// the UI drains it and calls Resolve.
	notify chan Request

	timeout time.Duration
}

// NewManager creates a manager with the given initial policy.
func NewManager(policy Policy) *Manager {
	if policy.Allowlist == nil {
		policy.Allowlist = map[string]struct{}{}
	}
	return &Manager{
		policy:  policy,
		pending: map[string]chan Decision{},
		notify:  make(chan Request, 16),
		timeout: DecisionTimeout,
	}
}

// Notifications exposes the interactive request queue.
func (m *Manager) Notifications() <-chan Request { return m.notify }

// SetAutoApproveAll flips the auto-approve switch.
func (m *Manager) SetAutoApproveAll(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policy.AutoApproveAll = v
}

// Allow adds tool to the allowlist.
func (m *Manager) Allow(tool string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policy.Allowlist[tool] = struct{}{}
}

// Allowed reports whether tool is allowlisted.
func (m *Manager) Allowed(tool string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.policy.Allowlist[tool]
	return ok
}

// NewRequest builds a Request for a tool call, extracting a best-effort
// human-readable target from the params.
func NewRequest(tool string, params map[string]any) Request {
	return Request{
		ID:        uuid.NewString(),
		Tool:      tool,
		Target:    extractTarget(params),
		Level:     Classify(tool),
		Params:    params,
		CreatedAt: time.Now(),
	}
}

// extractTarget pulls the most descriptive string out of the params.
func extractTarget(params map[string]any) string {
	for _, key := range []string{"path", "query", "command", "url", "source", "pattern", "name"} {
		if v, ok := params[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// Resolve delivers the user's decision for a pending request id. Unknown or
// already-resolved ids are ignored.
func (m *Manager) Resolve(id string, d Decision) {
	m.mu.Lock()
	ch, ok := m.pending[id]
	if ok {
		delete(m.pending, id)
	}
	m.mu.Unlock()
	if ok {
		ch <- d
	}
}

// Check resolves req: internal-safe and policy-approved requests return
// immediately; everything else waits for an interactive decision up to the
// deadline.
func (m *Manager) Check(ctx context.Context, req Request) Decision {
	if IsInternalSafe(req.Tool) {
		return Approved
	}

	m.mu.Lock()
	auto := m.policy.AutoApproveAll
	_, listed := m.policy.Allowlist[req.Tool]
	m.mu.Unlock()

	if auto || listed {
		log.Debug().Str("tool", req.Tool).Bool("auto", auto).Msg("permission_auto_approved")
		return Approved
	}

	// Known read-only tools carry no risk worth an interactive round-trip.
	if req.Level == ReadOnly && IsKnown(req.Tool) {
		return Approved
	}

	ch := make(chan Decision, 1)
	m.mu.Lock()
	m.pending[req.ID] = ch
	m.mu.Unlock()

	select {
	case m.notify <- req:
	default:
		// The interactive queue is full; deny rather than hang the agent
		// for the full deadline.
		m.mu.Lock()
		delete(m.pending, req.ID)
		m.mu.Unlock()
		log.Warn().Str("tool", req.Tool).Msg("permission_queue_full")
		return Denied
	}

	log.Info().
		Str("tool", req.Tool).
		Str("target", req.Target).
		Str("level", req.Level.String()).
		Msg("permission_requested")

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()
	select {
	case d := <-ch:
		log.Info().Str("tool", req.Tool).Str("decision", d.String()).Msg("permission_resolved")
		return d
	case <-timer.C:
		m.mu.Lock()
		delete(m.pending, req.ID)
		m.mu.Unlock()
		log.Warn().Str("tool", req.Tool).Msg("permission_timeout")
		return TimedOut
	case <-ctx.Done():
		m.mu.Lock()
		delete(m.pending, req.ID)
		m.mu.Unlock()
		return Denied
	}
}
