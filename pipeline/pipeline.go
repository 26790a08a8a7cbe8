// Package pipeline hands extracted listings to a single sink writer.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/go-scrape-watchcount/models"
	"github.com/aluiziolira/go-scrape-watchcount/parser"
)

var (
	// ErrQueueClosed is returned when Push is called after Drain.
	ErrQueueClosed = errors.New("pipeline: queue closed")
	// ErrDrainTimeout is returned when Drain gives up before the queue empties.
	ErrDrainTimeout = errors.New("pipeline: drain timed out")
)

// OutputWriter is the append-only sink fed by the queue consumer.
type OutputWriter interface {
	Write(record *models.ListingRecord) error
	Close() error
	Validate() error
}

// Options tunes a Queue.
type Options struct {
	// Size bounds the number of buffered records. Push blocks when full.
	Size int
	// DedupeMaxSize enables link de-duplication over the most recent
	// DedupeMaxSize links. Zero disables it.
	DedupeMaxSize int
	Logger        *slog.Logger
	// OnWriteError is called after a failed sink write, e.g. to feed metrics.
	OnWriteError func(error)
}

// Queue is a bounded multi-producer, single-consumer hand-off to an
// OutputWriter. Records from one producer are written in push order.
type Queue struct {
	writer  OutputWriter
	entries chan *models.ListingRecord
	logger  *slog.Logger

	writeMu sync.Mutex
	pending sync.WaitGroup
	done    chan struct{}

	seen *lru.Cache[string, struct{}]

	mu      sync.Mutex // guards started/closed
	started bool
	closed  bool

	closeOnce    sync.Once
	onWriteError func(error)

	metrics metrics
}

// NewQueue builds a queue in front of writer. Call Start before pushing.
func NewQueue(writer OutputWriter, opts Options) (*Queue, error) {
	if writer == nil {
		return nil, fmt.Errorf("pipeline: nil writer")
	}
	if opts.Size <= 0 {
		opts.Size = 512
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	q := &Queue{
		writer:       writer,
		entries:      make(chan *models.ListingRecord, opts.Size),
		logger:       opts.Logger.With(slog.String("component", "queue")),
		done:         make(chan struct{}),
		onWriteError: opts.OnWriteError,
		metrics:      newMetrics(),
	}
	if opts.DedupeMaxSize > 0 {
		seen, err := lru.New[string, struct{}](opts.DedupeMaxSize)
		if err != nil {
			return nil, fmt.Errorf("create dedupe cache: %w", err)
		}
		q.seen = seen
	}
	return q, nil
}

// Start launches the single consumer goroutine. Further calls are no-ops.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true
	go q.consume()
}

// Push enqueues one record, blocking while the queue is full. Records that
// fail validation or repeat a recently seen link are dropped and counted.
func (q *Queue) Push(ctx context.Context, record *models.ListingRecord) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.pending.Add(1)
	q.mu.Unlock()

	if err := parser.ValidateRecord(record); err != nil {
		q.pending.Done()
		q.metrics.addDropped("invalid_record")
		q.logger.Debug("record dropped", slog.Any("error", err))
		return nil
	}
	if q.seen != nil {
		if found, _ := q.seen.ContainsOrAdd(record.Link, struct{}{}); found {
			q.pending.Done()
			q.metrics.addDropped("duplicate_link")
			return nil
		}
	}

	select {
	case q.entries <- record:
		return nil
	case <-ctx.Done():
		q.pending.Done()
		return ctx.Err()
	}
}

// Drain stops accepting new records, waits until every accepted record has
// been written, then stops the consumer.
func (q *Queue) Drain(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	started := q.started
	q.mu.Unlock()

	flushed := make(chan struct{})
	go func() {
		q.pending.Wait()
		close(flushed)
	}()

	select {
	case <-flushed:
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrDrainTimeout, ctx.Err())
	}

	q.closeOnce.Do(func() {
		close(q.entries)
	})
	if started {
		<-q.done
	}
	return nil
}

// Stats returns a snapshot of the queue counters.
func (q *Queue) Stats() Stats {
	return q.metrics.snapshot()
}

// StartMetricsReporting emits periodic progress logs until the queue drains.
func (q *Queue) StartMetricsReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				stats := q.Stats()
				q.logger.Info("queue progress",
					slog.Int64("written", stats.Processed),
					slog.Int64("write_errors", stats.WriteErrors),
					slog.Int("buffered", len(q.entries)),
				)
			case <-q.done:
				return
			}
		}
	}()
}

func (q *Queue) consume() {
	defer close(q.done)
	for record := range q.entries {
		if err := q.write(record); err != nil {
			q.metrics.incrementWriteErrors()
			q.logger.Error("queue write failed",
				slog.String("link", record.Link),
				slog.Any("error", err),
			)
			if q.onWriteError != nil {
				q.onWriteError(err)
			}
		} else {
			q.metrics.incrementProcessed()
		}
		q.pending.Done()
	}
}

func (q *Queue) write(record *models.ListingRecord) (err error) {
	q.writeMu.Lock()
	defer q.writeMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("writer panic: %v", r)
		}
	}()
	return q.writer.Write(record)
}

// Stats is a point-in-time copy of the queue counters.
type Stats struct {
	Processed   int64
	WriteErrors int64
	Dropped     map[string]int
}

type metrics struct {
	mu          *sync.Mutex
	processed   int64
	writeErrors int64
	dropped     map[string]int
}

func newMetrics() metrics {
	return metrics{
		mu:      &sync.Mutex{},
		dropped: make(map[string]int),
	}
}

func (m *metrics) incrementProcessed() {
	m.mu.Lock()
	m.processed++
	m.mu.Unlock()
}

func (m *metrics) incrementWriteErrors() {
	m.mu.Lock()
	m.writeErrors++
	m.mu.Unlock()
}

func (m *metrics) addDropped(kind string) {
	m.mu.Lock()
	m.dropped[kind]++
	m.mu.Unlock()
}

func (m *metrics) snapshot() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	dropped := make(map[string]int, len(m.dropped))
	for k, v := range m.dropped {
		dropped[k] = v
	}
	return Stats{
		Processed:   m.processed,
		WriteErrors: m.writeErrors,
		Dropped:     dropped,
	}
}
