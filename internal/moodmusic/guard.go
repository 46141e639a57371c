package moodmusic

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/justestif/moodmusic/internal/metrics"
)

// DefaultSettleDelay is how long the guard waits before verifying a profile switch.
const DefaultSettleDelay = 200 * time.Millisecond

// Guard switches the host's active profile and puts it back.
// At most one lease is outstanding at a time.
type Guard struct {
	host    Host
	clock   Clock
	settle  time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	pending *Lease
}

// NewGuard creates a Guard.
func NewGuard(host Host, clock Clock, settle time.Duration, logger *slog.Logger, m *metrics.Metrics) *Guard {
	return &Guard{
		host:    host,
		clock:   clock,
		settle:  settle,
		logger:  logger,
		metrics: m,
	}
}

// CaptureCurrentProfile returns the active profile name, or "" if it cannot be read.
func (g *Guard) CaptureCurrentProfile(ctx context.Context) string {
	name, err := g.host.ActiveProfile(ctx)
	if err != nil {
		g.logger.Warn("could not read active profile", "error", err)
		return ""
	}
	if name == "" {
		g.logger.Warn("active profile is unknown, restoration will not be possible")
	}
	return name
}

// SwitchTo selects name and verifies after the settle delay that it took effect.
func (g *Guard) SwitchTo(ctx context.Context, name string) bool {
	if err := g.host.SetActiveProfile(ctx, name); err != nil {
		g.logger.Error("switching profile", "profile", name, "error", err)
		return false
	}

	if err := g.clock.Sleep(ctx, g.settle); err != nil {
		return false
	}

	got, err := g.host.ActiveProfile(ctx)
	if err != nil {
		g.logger.Error("verifying profile switch", "profile", name, "error", err)
		return false
	}
	if got != name {
		g.logger.Error("profile switch did not take effect", "want", name, "got", got)
		return false
	}
	return true
}

// Acquire switches to music and returns a lease that restores original.
// It returns nil when the switch failed, in which case nothing needs restoring.
func (g *Guard) Acquire(ctx context.Context, original, music string) *Lease {
	if !g.SwitchTo(ctx, music) {
		return nil
	}

	lease := &Lease{guard: g, original: original}
	g.mu.Lock()
	g.pending = lease
	g.mu.Unlock()
	return lease
}

// RestorePending restores the outstanding lease, if any.
// It reports false only when a restoration was attempted and failed.
func (g *Guard) RestorePending(ctx context.Context) bool {
	g.mu.Lock()
	lease := g.pending
	g.mu.Unlock()

	if lease == nil {
		return true
	}
	return lease.Restore(ctx)
}

// Pending reports whether a lease is outstanding.
func (g *Guard) Pending() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending != nil
}

func (g *Guard) clear(l *Lease) {
	g.mu.Lock()
	if g.pending == l {
		g.pending = nil
	}
	g.mu.Unlock()
}

func (g *Guard) notify(ctx context.Context, n Notification) {
	if err := g.host.Notify(ctx, n); err != nil {
		g.logger.Warn("sending notification", "error", err)
	}
}

// Lease is a switched-away profile awaiting restoration.
type Lease struct {
	guard    *Guard
	original string

	mu   sync.Mutex
	done bool
	ok   bool
}

// Original returns the profile the lease restores.
func (l *Lease) Original() string { return l.original }

// Restore switches back to the original profile. Only the first call does
// any work, later calls return its result.
func (l *Lease) Restore(ctx context.Context) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.done {
		return l.ok
	}
	l.done = true
	defer l.guard.clear(l)

	g := l.guard
	if l.original == "" {
		g.metrics.ProfileRestore("skipped")
		g.logger.Error("profile restoration required but the original profile is unknown")
		g.notify(ctx, Notification{
			Level:      LevelWarning,
			Message:    "MoodMusic: Original profile unknown - please check your profile settings",
			Persistent: true,
		})
		return false
	}

	g.logger.Info("restoring original profile", "profile", l.original)
	if !g.SwitchTo(ctx, l.original) {
		g.metrics.ProfileRestore("failed")
		g.logger.Error("failed to restore original profile", "profile", l.original)
		g.notify(ctx, Notification{
			Level:      LevelError,
			Message:    fmt.Sprintf("MoodMusic: Failed to restore profile %q - please check it manually", l.original),
			Persistent: true,
		})
		return false
	}

	g.metrics.ProfileRestore("ok")
	l.ok = true
	return true
}
