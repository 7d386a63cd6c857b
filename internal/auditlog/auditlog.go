// Package auditlog writes best-effort audit records (service interactions,
// error logs, push notifications) to the store.
//
// A Sink never returns an error and never blocks the caller on storage
// failures. Each Record call writes at most once; failures are logged,
// counted and dropped.
package auditlog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/telegive/bot-service/internal/database"
	"github.com/telegive/bot-service/internal/logger"
	"github.com/telegive/bot-service/internal/metrics"
)

// Sink accepts audit records.
type Sink interface {
	RecordInteraction(ctx context.Context, rec database.ServiceInteraction)
	RecordError(ctx context.Context, rec database.ErrorLog)
	RecordPushNotification(ctx context.Context, rec database.PushNotification)
}

// Writer is the subset of database.Store a sink writes to.
type Writer interface {
	SaveServiceInteraction(ctx context.Context, interaction *database.ServiceInteraction) error
	SaveErrorLog(ctx context.Context, log *database.ErrorLog) error
	SavePushNotification(ctx context.Context, n *database.PushNotification) error
}

const writeTimeout = 5 * time.Second

// StoreSink writes records synchronously on the caller's goroutine.
type StoreSink struct {
	store  Writer
	logger *slog.Logger
}

// NewStoreSink returns a synchronous sink backed by store.
func NewStoreSink(store Writer, log *slog.Logger) *StoreSink {
	if log == nil {
		log = logger.Discard()
	}
	return &StoreSink{store: store, logger: log.With("component", "audit_sink")}
}

func (s *StoreSink) RecordInteraction(ctx context.Context, rec database.ServiceInteraction) {
	s.write(ctx, "service_interaction", func(ctx context.Context) error {
		return s.store.SaveServiceInteraction(ctx, &rec)
	})
}

func (s *StoreSink) RecordError(ctx context.Context, rec database.ErrorLog) {
	s.write(ctx, "error_log", func(ctx context.Context) error {
		return s.store.SaveErrorLog(ctx, &rec)
	})
}

func (s *StoreSink) RecordPushNotification(ctx context.Context, rec database.PushNotification) {
	s.write(ctx, "push_notification", func(ctx context.Context) error {
		return s.store.SavePushNotification(ctx, &rec)
	})
}

// write detaches from the caller's cancellation so a finished request still
// gets its record written.
func (s *StoreSink) write(ctx context.Context, kind string, fn func(context.Context) error) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	if err := fn(wctx); err != nil {
		metrics.AuditRecordsDropped.WithLabelValues(kind, "write_error").Inc()
		s.logger.WarnContext(ctx, "Failed to write audit record", "kind", kind, "error", err)
	}
}

// AsyncSink queues records for a single background writer. When the queue is
// full the record is dropped.
type AsyncSink struct {
	next   Sink
	queue  chan func()
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewAsyncSink wraps next with a bounded queue. Call Run to start the writer.
func NewAsyncSink(next Sink, queueSize int, log *slog.Logger) *AsyncSink {
	if log == nil {
		log = logger.Discard()
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &AsyncSink{
		next:   next,
		queue:  make(chan func(), queueSize),
		logger: log.With("component", "audit_writer"),
		done:   make(chan struct{}),
	}
}

func (a *AsyncSink) RecordInteraction(ctx context.Context, rec database.ServiceInteraction) {
	ctx = context.WithoutCancel(ctx)
	a.enqueue(ctx, "service_interaction", func() { a.next.RecordInteraction(ctx, rec) })
}

func (a *AsyncSink) RecordError(ctx context.Context, rec database.ErrorLog) {
	ctx = context.WithoutCancel(ctx)
	a.enqueue(ctx, "error_log", func() { a.next.RecordError(ctx, rec) })
}

func (a *AsyncSink) RecordPushNotification(ctx context.Context, rec database.PushNotification) {
	ctx = context.WithoutCancel(ctx)
	a.enqueue(ctx, "push_notification", func() { a.next.RecordPushNotification(ctx, rec) })
}

func (a *AsyncSink) enqueue(ctx context.Context, kind string, job func()) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		metrics.AuditRecordsDropped.WithLabelValues(kind, "closed").Inc()
		return
	}
	select {
	case a.queue <- job:
	default:
		metrics.AuditRecordsDropped.WithLabelValues(kind, "queue_full").Inc()
		a.logger.WarnContext(ctx, "Audit queue full, dropping record", "kind", kind)
	}
}

// Run drains the queue until ctx is cancelled, then flushes what is left.
func (a *AsyncSink) Run(ctx context.Context) error {
	a.logger.Info("Starting audit writer", "queue_size", cap(a.queue))
	defer close(a.done)
	for {
		select {
		case job := <-a.queue:
			job()
		case <-ctx.Done():
			a.mu.Lock()
			a.closed = true
			a.mu.Unlock()
			a.drain()
			a.logger.Info("Audit writer stopped")
			return nil
		}
	}
}

func (a *AsyncSink) drain() {
	for {
		select {
		case job := <-a.queue:
			job()
		default:
			return
		}
	}
}

// Done is closed once Run has returned.
func (a *AsyncSink) Done() <-chan struct{} {
	return a.done
}
