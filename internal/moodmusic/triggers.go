package moodmusic

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/justestif/moodmusic/internal/metrics"
)

// BindingTimings are the debounce settings of the event bindings.
type BindingTimings struct {
	Spacing          time.Duration // minimum gap between accepted events of one kind
	GenerationSettle time.Duration
	SwipeSettle      time.Duration
	BusyRetry        time.Duration // wait when a generation is still running at fire time
}

// DefaultBindingTimings returns the standard debounce settings.
func DefaultBindingTimings() BindingTimings {
	return BindingTimings{
		Spacing:          time.Second,
		GenerationSettle: 3 * time.Second,
		SwipeSettle:      800 * time.Millisecond,
		BusyRetry:        3 * time.Second,
	}
}

// Bindings turn chat host events into coordinator runs. Only the most
// recent pending trigger survives.
type Bindings struct {
	host    Host
	coord   *Coordinator
	clock   Clock
	timings BindingTimings
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu          sync.Mutex
	ctx         context.Context
	unsubscribe []func()
	lastEventAt map[EventKind]time.Time
	lastKey     string
	pending     Timer
	gen         uint64
}

// NewBindings creates detached bindings.
func NewBindings(host Host, coord *Coordinator, clock Clock, timings BindingTimings, logger *slog.Logger, m *metrics.Metrics) *Bindings {
	return &Bindings{
		host:        host,
		coord:       coord,
		clock:       clock,
		timings:     timings,
		logger:      logger,
		metrics:     m,
		lastEventAt: make(map[EventKind]time.Time),
	}
}

// Attach subscribes to generation-ended and message-swiped events.
// Coordinator runs use ctx.
func (b *Bindings) Attach(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.unsubscribe != nil {
		return nil
	}
	b.ctx = ctx

	for _, kind := range []EventKind{EventGenerationEnded, EventMessageSwiped} {
		unsub, err := b.host.Subscribe(kind, b.Handle)
		if err != nil {
			for _, u := range b.unsubscribe {
				u()
			}
			b.unsubscribe = nil
			return err
		}
		b.unsubscribe = append(b.unsubscribe, unsub)
	}
	b.logger.Info("event triggers attached")
	return nil
}

// Detach unsubscribes and drops any pending trigger.
func (b *Bindings) Detach() {
	b.mu.Lock()
	unsubs := b.unsubscribe
	b.unsubscribe = nil
	b.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
	b.Cancel()
}

// Cancel drops the pending trigger, if any.
func (b *Bindings) Cancel() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gen++
	if b.pending != nil {
		b.pending.Stop()
		b.pending = nil
	}
}

// Handle processes one host event.
func (b *Bindings) Handle(ev Event) {
	if ev.Kind == EventGenerationEnded && ev.IsUser {
		b.drop(ev, DropUserMessage)
		return
	}

	reason, settle := ReasonGenerationEnded, b.timings.GenerationSettle
	if ev.Kind == EventMessageSwiped {
		reason, settle = ReasonSwipe, b.timings.SwipeSettle
	}
	key := dedupeKey(ev)
	now := b.clock.Now()

	b.mu.Lock()
	defer b.mu.Unlock()

	if last, ok := b.lastEventAt[ev.Kind]; ok && now.Sub(last) < b.timings.Spacing {
		b.drop(ev, DropSpacing)
		return
	}
	if key == b.lastKey {
		b.drop(ev, DropDuplicate)
		return
	}
	if why := b.coord.CanStart(reason); why != "" {
		b.drop(ev, why)
		return
	}

	b.lastEventAt[ev.Kind] = now
	if b.pending != nil {
		b.pending.Stop()
		b.metrics.TriggerDropped(DropSuperseded)
	}
	b.gen++
	gen := b.gen
	b.pending = b.clock.AfterFunc(settle, func() { b.fire(gen, key, reason, false) })
	b.logger.Debug("trigger scheduled", "event", ev.Kind, "key", key, "delay", settle)
}

func (b *Bindings) fire(gen uint64, key string, reason Reason, retried bool) {
	b.mu.Lock()
	if gen != b.gen {
		b.mu.Unlock()
		return
	}
	b.pending = nil
	ctx := b.ctx
	b.mu.Unlock()

	if why := b.coord.CanStart(reason); why != "" {
		b.metrics.TriggerDropped(why)
		b.logger.Debug("trigger conditions not met at fire time", "reason", why, "trigger", reason)
		return
	}

	busy, err := b.host.GenerationInProgress(ctx)
	if err != nil {
		b.logger.Warn("checking generation status", "error", err)
	}
	if busy && !retried {
		b.mu.Lock()
		if gen == b.gen {
			b.pending = b.clock.AfterFunc(b.timings.BusyRetry, func() { b.fire(gen, key, reason, true) })
		}
		b.mu.Unlock()
		b.logger.Debug("generation still running, rescheduling trigger", "delay", b.timings.BusyRetry)
		return
	}

	b.mu.Lock()
	b.lastKey = key
	b.mu.Unlock()

	b.coord.Run(ctx, reason)
}

func (b *Bindings) drop(ev Event, reason string) {
	b.metrics.TriggerDropped(reason)
	b.logger.Debug("event ignored", "event", ev.Kind, "message_id", ev.MessageID, "reason", reason)
}

// dedupeKey identifies an event's message. Each swipe of a message is distinct.
func dedupeKey(ev Event) string {
	if ev.Kind == EventMessageSwiped {
		return ev.MessageID + "#" + strconv.Itoa(ev.SwipeID)
	}
	return ev.MessageID
}
