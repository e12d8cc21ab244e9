// Package audit implements the optional audit stream attached for the life
// of a database: every statement the query compiler/CRUD executor runs is
// recorded as an Event and buffered per the scope it ran in, then either
// flushed to the attached Observer or discarded depending on that scope's
// outcome — a tee sink where one branch is a bounded in-memory buffer gated
// by the caller's outcome. Delivery is always best-effort: an
// Observer failure is logged through internal/log and never surfaces to the
// caller whose statement it describes.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/tunqi-go/tunqi/internal/log"
)

// Event is one statement's audit record: what ran, against what parameters,
// how long it took, how many rows it touched, and whether it failed.
type Event struct {
	Table        string
	Operation    string // "insert", "update", "delete", "select", "count", "exists"
	Statement    string
	Params       []any
	Duration     time.Duration
	RowsAffected int64
	Err          error
}

// Observer receives audit events. Observe's own error is logged and
// otherwise ignored — per spec, audit delivery must not affect outcomes.
type Observer interface {
	Observe(ctx context.Context, ev Event) error
}

// ObserverFunc adapts a plain function to Observer.
type ObserverFunc func(ctx context.Context, ev Event) error

func (f ObserverFunc) Observe(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Stream is the observer attached for the life of a Database. A nil *Stream
// is valid and delivers nothing, so callers that never configure an audit
// observer pay only a nil check per event.
type Stream struct {
	observer Observer
	logger   log.Logger
}

// NewStream attaches observer for the life of a database, logging its
// delivery failures through logger rather than propagating them.
func NewStream(observer Observer, logger log.Logger) *Stream {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Stream{observer: observer, logger: logger}
}

func (s *Stream) deliver(ctx context.Context, ev Event) {
	if s == nil || s.observer == nil {
		return
	}
	if err := s.observer.Observe(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "audit observer failed", "error", err, "table", ev.Table, "operation", ev.Operation)
	}
}

// Collector is the tee sink for one request/transaction scope: Record always
// buffers, up to capacity (dropping the oldest event once full), and Flush
// decides whether that buffer ever reaches the attached Stream.
type Collector struct {
	stream *Stream
	cap    int

	mu  sync.Mutex
	buf []Event
}

// NewCollector opens a new buffering scope delivering, on failure, to
// stream. A nil stream is valid: Flush then just clears the buffer.
func NewCollector(stream *Stream, capacity int) *Collector {
	if capacity <= 0 {
		capacity = 256
	}
	return &Collector{stream: stream, cap: capacity}
}

// Record buffers ev. A nil Collector silently drops ev, so instrumented call
// sites never need to check whether a collector is in scope.
func (c *Collector) Record(ev Event) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.buf) >= c.cap {
		c.buf = c.buf[1:]
	}
	c.buf = append(c.buf, ev)
}

// Flush delivers every buffered event to the attached Stream when failed is
// true, and discards the buffer otherwise. Either way the buffer is empty
// afterwards: a scope's outcome is a one-time decision.
func (c *Collector) Flush(ctx context.Context, failed bool) {
	if c == nil {
		return
	}
	c.mu.Lock()
	events := c.buf
	c.buf = nil
	c.mu.Unlock()

	if !failed {
		return
	}
	for _, ev := range events {
		c.stream.deliver(ctx, ev)
	}
}

type collectorKey struct{}

// WithCollector pushes c as the collector in scope on ctx.
func WithCollector(ctx context.Context, c *Collector) context.Context {
	return context.WithValue(ctx, collectorKey{}, c)
}

// FromContext returns the collector in scope on ctx, or nil if none.
func FromContext(ctx context.Context) *Collector {
	c, _ := ctx.Value(collectorKey{}).(*Collector)
	return c
}

// Emit records ev against whatever collector is in scope on ctx; a no-op
// when ctx carries none, so call sites can emit unconditionally.
func Emit(ctx context.Context, ev Event) {
	FromContext(ctx).Record(ev)
}
