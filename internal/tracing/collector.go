// Package tracing collects timed spans from pairing sessions and forwards
// them to an optional external exporter. Nothing is persisted locally: spans
// either leave through the exporter or are dropped on flush.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultFlushInterval = 5 * time.Second
	defaultBufferSize    = 1024
)

// Span is one timed step of a pairing session. TraceID groups the steps of
// one session; the session's root span carries the same value as its span ID.
type Span struct {
	ID      uuid.UUID
	TraceID uuid.UUID
	Name    string
	Kind    string // "session", "connect", "artifact", "upload"
	Start   time.Time
	End     time.Time
	Status  string // "ok" or "error"
	Error   string
	Attrs   map[string]string
}

// GenSpanID returns a fresh time-ordered span identifier.
func GenSpanID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// SpanExporter is implemented by backends that receive span batches (e.g.
// OpenTelemetry OTLP). Keeping this as an interface lets the OTel dependency
// live in a separate sub-package behind a build tag.
type SpanExporter interface {
	ExportSpans(ctx context.Context, spans []Span)
	Shutdown(ctx context.Context) error
}

// Collector buffers spans in memory and periodically flushes them to the
// exporter in batches. Without an exporter the flush discards them, so
// emitting stays cheap either way.
type Collector struct {
	spanCh chan Span
	stopCh chan struct{}
	wg     sync.WaitGroup

	exporter SpanExporter // optional external exporter (nil = disabled)
}

// NewCollector creates a tracing collector.
func NewCollector() *Collector {
	return &Collector{
		spanCh: make(chan Span, defaultBufferSize),
		stopCh: make(chan struct{}),
	}
}

// SetExporter attaches an external span exporter. Call before Start.
func (c *Collector) SetExporter(exp SpanExporter) {
	c.exporter = exp
}

// Start begins the background flush loop.
func (c *Collector) Start() {
	c.wg.Add(1)
	go c.flushLoop()
	slog.Info("tracing collector started")
}

// Stop gracefully shuts down the collector, flushing remaining spans.
func (c *Collector) Stop() {
	close(c.stopCh)
	c.wg.Wait()

	if c.exporter != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.exporter.Shutdown(ctx); err != nil {
			slog.Warn("tracing: span exporter shutdown failed", "error", err)
		}
	}

	slog.Info("tracing collector stopped")
}

// EmitSpan enqueues a span for the next flush.
// Non-blocking: drops the span if the buffer is full.
func (c *Collector) EmitSpan(span Span) {
	if span.ID == uuid.Nil {
		span.ID = GenSpanID()
	}
	if span.End.IsZero() {
		span.End = time.Now()
	}

	select {
	case c.spanCh <- span:
	default:
		slog.Warn("tracing: span buffer full, dropping span", "kind", span.Kind, "name", span.Name)
	}
}

func (c *Collector) flushLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(defaultFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.flush()
		case <-c.stopCh:
			// Drain remaining spans
			c.flush()
			return
		}
	}
}

func (c *Collector) flush() {
	var spans []Span
	for {
		select {
		case span := <-c.spanCh:
			spans = append(spans, span)
		default:
			goto done
		}
	}
done:

	if len(spans) == 0 || c.exporter == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c.exporter.ExportSpans(ctx, spans)
	slog.Debug("tracing: flushed spans", "count", len(spans))
}
