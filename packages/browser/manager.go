package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"commentbot/packages/domain"
)

// Manager owns the role-keyed sessions and their supervision loop. It is the
// explicitly constructed automation context injected into every component
// that needs session access.
type Manager struct {
	cfg    Config
	parent context.Context

	mu       sync.Mutex
	sessions map[domain.SessionRole]*Session
	flagged  map[domain.SessionRole]bool
}

func NewManager(parent context.Context, cfg Config) *Manager {
	return &Manager{
		cfg:      cfg,
		parent:   parent,
		sessions: make(map[domain.SessionRole]*Session),
		flagged:  make(map[domain.SessionRole]bool),
	}
}

// Start creates and authenticates a session per role, with bounded
// retry/backoff per session.
func (m *Manager) Start(ctx context.Context, roles ...domain.SessionRole) error {
	for _, role := range roles {
		sess, err := m.createWithRetry(ctx, role)
		if err != nil {
			return fmt.Errorf("failed to start %s session: %w", role, err)
		}
		m.mu.Lock()
		m.sessions[role] = sess
		m.mu.Unlock()
		slog.Info("Browser session ready", "role", role)
	}
	return nil
}

func (m *Manager) createWithRetry(ctx context.Context, role domain.SessionRole) (*Session, error) {
	backoff := m.cfg.Backoff
	var lastErr error
	for attempt := 1; attempt <= m.cfg.Retries; attempt++ {
		sess, err := newSession(m.parent, role, m.cfg)
		if err == nil {
			err = m.authenticate(ctx, role, sess)
			if err == nil {
				return sess, nil
			}
			sess.Close()
		}
		lastErr = err
		slog.Warn("Session creation attempt failed", "role", role, "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return nil, lastErr
}

// authenticate logs the session in. The message role first tries to copy
// cookies from an already-authenticated scan session, which avoids a second
// interactive login and shrinks the concurrent-login window.
func (m *Manager) authenticate(ctx context.Context, role domain.SessionRole, sess *Session) error {
	if role == domain.RoleMessage {
		if donor, ok := m.Session(domain.RoleScan); ok && donor.Authed() {
			cookies, err := donor.ExportCookies(ctx)
			if err == nil {
				if err := sess.ImportCookies(ctx, cookies); err == nil {
					if err := sess.ContentReachable(ctx); err == nil {
						return nil
					}
				}
			}
			slog.Warn("Cookie bootstrap from scan session failed, logging in directly", "error", err)
		}
	}
	return sess.Authenticate(ctx)
}

func (m *Manager) Session(role domain.SessionRole) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[role]
	return sess, ok
}

// FlagUnhealthy marks a role for recreation on the next supervision pass.
func (m *Manager) FlagUnhealthy(role domain.SessionRole) {
	m.mu.Lock()
	m.flagged[role] = true
	m.mu.Unlock()
	slog.Warn("Session flagged unhealthy", "role", role)
}

// Recreate tears down and rebuilds only the affected session.
func (m *Manager) Recreate(ctx context.Context, role domain.SessionRole) (*Session, error) {
	m.mu.Lock()
	if old, ok := m.sessions[role]; ok {
		old.Close()
		delete(m.sessions, role)
	}
	delete(m.flagged, role)
	m.mu.Unlock()

	sess, err := m.createWithRetry(ctx, role)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.sessions[role] = sess
	m.mu.Unlock()
	slog.Info("Browser session recreated", "role", role)
	return sess, nil
}

// Supervise runs the health loop: flagged or dead sessions are recreated,
// healthy ones get the deep feed-reachability probe on a slower cadence.
func (m *Manager) Supervise(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	deepEvery := 5
	cycle := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cycle++
			m.superviseOnce(ctx, cycle%deepEvery == 0)
		}
	}
}

func (m *Manager) superviseOnce(ctx context.Context, deep bool) {
	m.mu.Lock()
	roles := make([]domain.SessionRole, 0, len(m.sessions))
	for role := range m.sessions {
		roles = append(roles, role)
	}
	m.mu.Unlock()

	for _, role := range roles {
		sess, ok := m.Session(role)
		if !ok {
			continue
		}
		m.mu.Lock()
		flagged := m.flagged[role]
		m.mu.Unlock()

		switch {
		case flagged || !sess.Alive(ctx):
			if _, err := m.Recreate(ctx, role); err != nil {
				slog.Error("Session recreation failed", "role", role, "error", err)
			}
		case deep && role == domain.RoleScan:
			if err := sess.ContentReachable(ctx); err != nil {
				slog.Warn("Deep health probe failed", "role", role, "error", err)
				if _, err := m.Recreate(ctx, role); err != nil {
					slog.Error("Session recreation failed", "role", role, "error", err)
				}
			}
		}
	}
}

func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for role, sess := range m.sessions {
		sess.Close()
		delete(m.sessions, role)
	}
}
