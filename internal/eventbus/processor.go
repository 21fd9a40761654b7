// Package eventbus implements the event processor: a bounded ring channel
// plus a consumer goroutine that fans events out to handlers registered per
// event kind. It is grounded on the reference codebase's event.EventBus
// (non-blocking publish with a select/default drop) and the ring-buffer
// consumer loop of the original execution engine, adapted to a handler
// registry instead of a single fan-out channel.
package eventbus

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/Quant-Club/Quant-Engine/internal/domain"
	"github.com/Quant-Club/Quant-Engine/internal/ring"
	"github.com/Quant-Club/Quant-Engine/internal/telemetry/logging"
	"github.com/Quant-Club/Quant-Engine/internal/telemetry/metrics"
)

// Handler is invoked once per event of a given kind, in publish order.
type Handler func(domain.Event)

// HandlerID identifies a previously registered Handler for Unsubscribe.
type HandlerID uint64

// Config controls the processor's backpressure and buffer sizing.
type Config struct {
	// BufferSize is the ring channel capacity request (rounded up to a
	// power of two internally; one slot is reserved).
	BufferSize int
	// PublishRetries bounds how many times Publish yields and retries
	// before giving up when the channel is full.
	PublishRetries int
}

// DefaultConfig returns sane defaults matching the reference codebase's
// event bus buffer size.
func DefaultConfig() Config {
	return Config{BufferSize: 1000, PublishRetries: 3}
}

type registeredHandler struct {
	id HandlerID
	fn Handler
}

// Processor owns a ring channel, a consumer goroutine, and a handler
// registry keyed by event kind.
type Processor struct {
	cfg Config
	log *logging.Logger

	buf *ring.Buffer

	mu   sync.Mutex // guards cond wakeups; separate from handlersMu
	cond *sync.Cond

	handlersMu sync.RWMutex
	handlers   map[domain.EventKind][]registeredHandler
	nextID     atomic.Uint64

	running atomic.Bool
	wg      sync.WaitGroup

	dropped atomic.Uint64
}

// New constructs a Processor. It does not start the consumer goroutine;
// call Start for that.
func New(cfg Config, log *logging.Logger) *Processor {
	if cfg.BufferSize <= 0 {
		cfg = DefaultConfig()
	}
	if cfg.PublishRetries <= 0 {
		cfg.PublishRetries = DefaultConfig().PublishRetries
	}
	p := &Processor{
		cfg:      cfg,
		log:      log,
		buf:      ring.New(cfg.BufferSize),
		handlers: make(map[domain.EventKind][]registeredHandler),
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Start idempotently transitions the processor to running and spawns the
// consumer goroutine.
func (p *Processor) Start() {
	if !p.running.CompareAndSwap(false, true) {
		return
	}
	p.wg.Add(1)
	go p.consume()
}

// Stop idempotently transitions the processor to stopped, wakes the
// consumer, and waits for it to exit. In-flight handler invocations run to
// completion; any events still queued are discarded.
func (p *Processor) Stop() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	p.mu.Lock()
	p.cond.Broadcast()
	p.mu.Unlock()
	p.wg.Wait()
}

// Publish enqueues an event. It never blocks the caller: when the channel is
// full it yields and retries a bounded number of times, then fails fast.
// Returns false if the processor is not running or the channel remained full
// through all retries.
func (p *Processor) Publish(e domain.Event) bool {
	if !p.running.Load() {
		return false
	}
	for attempt := 0; attempt <= p.cfg.PublishRetries; attempt++ {
		if p.buf.Push(e) {
			p.mu.Lock()
			p.cond.Signal()
			p.mu.Unlock()
			metrics.SetRingQueueDepth(p.buf.Len())
			return true
		}
		runtime.Gosched()
	}
	p.dropped.Add(1)
	metrics.AddRingDropped(1)
	if p.log != nil {
		p.log.Warn("eventbus: publish dropped, channel full", "kind", string(e.Kind))
	}
	return false
}

// Subscribe registers a handler for kind and returns an id usable with
// Unsubscribe.
func (p *Processor) Subscribe(kind domain.EventKind, h Handler) HandlerID {
	id := HandlerID(p.nextID.Add(1))
	p.handlersMu.Lock()
	p.handlers[kind] = append(p.handlers[kind], registeredHandler{id: id, fn: h})
	p.handlersMu.Unlock()
	return id
}

// Unsubscribe removes a previously registered handler. It is a no-op if the
// id is absent.
func (p *Processor) Unsubscribe(kind domain.EventKind, id HandlerID) {
	p.handlersMu.Lock()
	defer p.handlersMu.Unlock()
	list := p.handlers[kind]
	for i, rh := range list {
		if rh.id == id {
			p.handlers[kind] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// DroppedCount returns the number of events dropped by Publish due to a
// persistently full channel.
func (p *Processor) DroppedCount() uint64 {
	return p.dropped.Load()
}

// QueueDepth returns the number of events currently queued, for metrics.
func (p *Processor) QueueDepth() int {
	return p.buf.Len()
}

func (p *Processor) consume() {
	defer p.wg.Done()
	for {
		if !p.running.Load() {
			// Stop() was called: in-flight work above already ran to
			// completion; whatever remains queued is discarded here.
			return
		}
		ev, ok := p.buf.Pop()
		if !ok {
			p.mu.Lock()
			// Re-check under the lock: Publish/Stop may have signaled
			// between the failed Pop and acquiring the lock.
			if p.buf.Empty() && p.running.Load() {
				p.cond.Wait()
			}
			p.mu.Unlock()
			continue
		}
		metrics.SetRingQueueDepth(p.buf.Len())
		p.dispatch(ev)
	}
}

func (p *Processor) dispatch(ev domain.Event) {
	p.handlersMu.RLock()
	list := p.handlers[ev.Kind]
	snapshot := make([]registeredHandler, len(list))
	copy(snapshot, list)
	p.handlersMu.RUnlock()

	for _, rh := range snapshot {
		p.invoke(rh.fn, ev)
	}
}

func (p *Processor) invoke(h Handler, ev domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			if p.log != nil {
				p.log.Error("eventbus: handler panicked", "kind", string(ev.Kind), "panic", r)
			}
		}
	}()
	h(ev)
}
