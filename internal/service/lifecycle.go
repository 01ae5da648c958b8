package service

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/devricklin/feishu-guard-bot/internal/biz/domain"
)

// State is the connection lifecycle state
type State int32

const (
	// StateBuffering queues events until the connection is fully synced
	StateBuffering State = iota
	// StateDraining replays the queue; new arrivals wait behind it
	StateDraining
	// StateLive hands events straight to the handler
	StateLive
)

func (s State) String() string {
	switch s {
	case StateBuffering:
		return "buffering"
	case StateDraining:
		return "draining"
	case StateLive:
		return "live"
	default:
		return "unknown"
	}
}

// EventHandler processes one inbound event
type EventHandler func(ctx context.Context, ev domain.InboundEvent)

// lifecycleItem is either an event or a connection signal
type lifecycleItem struct {
	event  *domain.InboundEvent
	signal domain.ConnectionSignal
}

// Lifecycle serializes events and connection signals through one worker goroutine.
// Events arriving before the fully-synced signal are buffered in the bootstrap queue and
// replayed, in order, before any later event is handled.
type Lifecycle struct {
	handler EventHandler
	queue   *EventQueue
	logger  *zap.Logger

	items chan lifecycleItem
	state atomic.Int32
	seq   uint64 // Owned by the worker

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped bool
	done    chan struct{}
	once    sync.Once
}

// NewLifecycle creates a lifecycle in the buffering state
func NewLifecycle(handler EventHandler, queue *EventQueue, logger *zap.Logger) *Lifecycle {
	if queue == nil {
		queue = NewEventQueue(nil)
	}
	return &Lifecycle{
		handler: handler,
		queue:   queue,
		logger:  logger.Named("lifecycle"),
		items:   make(chan lifecycleItem, 1024),
		done:    make(chan struct{}),
	}
}

// Start starts the worker. It does nothing after Stop.
func (l *Lifecycle) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped || l.cancel != nil {
		return
	}
	ctx, l.cancel = context.WithCancel(ctx)
	go l.run(ctx)
}

// Stop stops the worker and waits for the in-flight event to finish. Pending items are discarded.
// Stopping a lifecycle that was never started rejects later submissions.
func (l *Lifecycle) Stop() {
	l.once.Do(func() {
		l.mu.Lock()
		l.stopped = true
		cancel := l.cancel
		l.mu.Unlock()

		if cancel == nil {
			close(l.done)
			return
		}
		cancel()
		<-l.done
	})
}

// Submit hands ev to the worker, stamping its arrival time. The worker assigns Seq
// as it takes events off the inbox, so sequence numbers follow handling order.
// It blocks while the worker's inbox is full and returns false once the lifecycle has stopped.
func (l *Lifecycle) Submit(ev domain.InboundEvent) bool {
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now()
	}
	return l.push(lifecycleItem{event: &ev})
}

// Signal forwards a connection signal, ordered with the events around it
func (l *Lifecycle) Signal(sig domain.ConnectionSignal) bool {
	return l.push(lifecycleItem{signal: sig})
}

// State returns the current state
func (l *Lifecycle) State() State {
	return State(l.state.Load())
}

// Queued returns the number of buffered startup events
func (l *Lifecycle) Queued() int {
	return l.queue.Len()
}

func (l *Lifecycle) push(item lifecycleItem) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.items <- item:
		return true
	case <-l.done:
		return false
	}
}

func (l *Lifecycle) run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-l.items:
			if item.event != nil {
				l.seq++
				item.event.Seq = l.seq
				l.onEvent(ctx, *item.event)
			} else {
				l.onSignal(ctx, item.signal)
			}
		}
	}
}

func (l *Lifecycle) onEvent(ctx context.Context, ev domain.InboundEvent) {
	if l.State() == StateLive {
		l.handle(ctx, ev)
		return
	}

	if err := l.queue.Enqueue(ev); err != nil {
		// Queue already drained; only reachable if state and queue disagree
		l.handle(ctx, ev)
		return
	}
	l.logger.Debug("event buffered", zap.String("kind", string(ev.Kind)), zap.Uint64("seq", ev.Seq))
}

func (l *Lifecycle) onSignal(ctx context.Context, sig domain.ConnectionSignal) {
	l.logger.Info("connection signal", zap.String("signal", string(sig)), zap.Stringer("state", l.State()))

	if sig != domain.SignalFullySynced || l.State() != StateBuffering {
		return
	}

	l.state.Store(int32(StateDraining))
	n, err := l.queue.DrainAndReplay(ctx, l.handle)
	if err != nil {
		l.logger.Warn("replay interrupted", zap.Int("replayed", n), zap.Error(err))
	}
	l.state.Store(int32(StateLive))
	l.logger.Info("live", zap.Int("replayed", n))
}

// handle runs the handler, keeping a panic from taking down the worker
func (l *Lifecycle) handle(ctx context.Context, ev domain.InboundEvent) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("event handler panicked",
				zap.Any("panic", r),
				zap.String("kind", string(ev.Kind)),
				zap.Uint64("seq", ev.Seq),
				zap.ByteString("stack", debug.Stack()))
		}
	}()
	l.handler(ctx, ev)
}
