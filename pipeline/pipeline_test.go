package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/go-scrape-watchcount/models"
)

type mockWriter struct {
	mu          sync.Mutex
	records     []*models.ListingRecord
	failOn      map[string]bool
	closed      bool
	validateErr error
}

func (mw *mockWriter) Write(record *models.ListingRecord) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	if mw.failOn[record.Link] {
		return fmt.Errorf("sink rejected %s", record.Link)
	}
	mw.records = append(mw.records, record)
	return nil
}

func (mw *mockWriter) Close() error {
	mw.mu.Lock()
	mw.closed = true
	mw.mu.Unlock()
	return nil
}

func (mw *mockWriter) Validate() error {
	return mw.validateErr
}

func (mw *mockWriter) links() []string {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	out := make([]string, 0, len(mw.records))
	for _, r := range mw.records {
		out = append(out, r.Link)
	}
	return out
}

type blockingWriter struct {
	blockCh chan struct{}
}

func (bw *blockingWriter) Write(record *models.ListingRecord) error {
	<-bw.blockCh
	return nil
}

func (bw *blockingWriter) Close() error {
	return nil
}

func (bw *blockingWriter) Validate() error {
	return nil
}

func testRecord(n int) *models.ListingRecord {
	return &models.ListingRecord{
		Price:       "$" + strconv.Itoa(100+n),
		Link:        "https://example.test/itm/" + strconv.Itoa(n),
		Watchers:    strconv.Itoa(n + 1),
		Title:       "Listing " + strconv.Itoa(n),
		StartDate:   "Jan 1 2024",
		EndDate:     "Jan 8 2024",
		RunningTime: "7 days",
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestQueue(t *testing.T, w OutputWriter, opts Options) *Queue {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	q, err := NewQueue(w, opts)
	require.NoError(t, err)
	return q
}

func TestQueueDrainWritesEveryAcceptedRecord(t *testing.T) {
	w := &mockWriter{}
	q := newTestQueue(t, w, Options{Size: 4})
	q.Start()

	const producers, perProducer = 5, 20
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				assert.NoError(t, q.Push(context.Background(), testRecord(p*perProducer+i)))
			}
		}(p)
	}
	wg.Wait()

	require.NoError(t, q.Drain(context.Background()))
	assert.Len(t, w.links(), producers*perProducer)

	stats := q.Stats()
	assert.Equal(t, int64(producers*perProducer), stats.Processed)
	assert.Zero(t, stats.WriteErrors)
}

func TestQueuePreservesSingleProducerOrder(t *testing.T) {
	w := &mockWriter{}
	q := newTestQueue(t, w, Options{Size: 2})
	q.Start()

	var want []string
	for i := 0; i < 10; i++ {
		r := testRecord(i)
		want = append(want, r.Link)
		require.NoError(t, q.Push(context.Background(), r))
	}
	require.NoError(t, q.Drain(context.Background()))
	assert.Equal(t, want, w.links())
}

func TestQueueWriteErrorDoesNotStopConsumer(t *testing.T) {
	bad := testRecord(1)
	w := &mockWriter{failOn: map[string]bool{bad.Link: true}}

	var reported []error
	var mu sync.Mutex
	q := newTestQueue(t, w, Options{
		Size: 8,
		OnWriteError: func(err error) {
			mu.Lock()
			reported = append(reported, err)
			mu.Unlock()
		},
	})
	q.Start()

	for i := 0; i < 3; i++ {
		require.NoError(t, q.Push(context.Background(), testRecord(i)))
	}
	require.NoError(t, q.Drain(context.Background()))

	assert.Equal(t, []string{testRecord(0).Link, testRecord(2).Link}, w.links())
	stats := q.Stats()
	assert.Equal(t, int64(2), stats.Processed)
	assert.Equal(t, int64(1), stats.WriteErrors)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, reported, 1)
}

func TestQueuePushAfterDrain(t *testing.T) {
	q := newTestQueue(t, &mockWriter{}, Options{})
	q.Start()
	require.NoError(t, q.Drain(context.Background()))

	err := q.Push(context.Background(), testRecord(0))
	assert.ErrorIs(t, err, ErrQueueClosed)

	// Draining twice is harmless.
	assert.NoError(t, q.Drain(context.Background()))
}

func TestQueueDrainTimeout(t *testing.T) {
	bw := &blockingWriter{blockCh: make(chan struct{})}
	q := newTestQueue(t, bw, Options{Size: 1})
	q.Start()

	require.NoError(t, q.Push(context.Background(), testRecord(0)))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := q.Drain(ctx)
	assert.ErrorIs(t, err, ErrDrainTimeout)

	close(bw.blockCh)
	assert.NoError(t, q.Drain(context.Background()))
}

func TestQueuePushBlocksWhenFull(t *testing.T) {
	bw := &blockingWriter{blockCh: make(chan struct{})}
	q := newTestQueue(t, bw, Options{Size: 1})
	q.Start()

	// One record is held by the consumer, one fills the buffer.
	require.NoError(t, q.Push(context.Background(), testRecord(0)))
	require.NoError(t, q.Push(context.Background(), testRecord(1)))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := q.Push(ctx, testRecord(2))
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "push should block until ctx expires, got %v", err)

	close(bw.blockCh)
	require.NoError(t, q.Drain(context.Background()))
	assert.Equal(t, int64(2), q.Stats().Processed)
}

func TestQueueValidationAndDedupe(t *testing.T) {
	w := &mockWriter{}
	q := newTestQueue(t, w, Options{Size: 8, DedupeMaxSize: 16})
	q.Start()

	invalid := testRecord(5)
	invalid.Title = ""

	require.NoError(t, q.Push(context.Background(), testRecord(1)))
	require.NoError(t, q.Push(context.Background(), testRecord(1)))
	require.NoError(t, q.Push(context.Background(), invalid))
	require.NoError(t, q.Push(context.Background(), testRecord(2)))
	require.NoError(t, q.Drain(context.Background()))

	assert.Equal(t, []string{testRecord(1).Link, testRecord(2).Link}, w.links())
	stats := q.Stats()
	assert.Equal(t, 1, stats.Dropped["duplicate_link"])
	assert.Equal(t, 1, stats.Dropped["invalid_record"])
}

func TestQueueDedupeDisabledByDefault(t *testing.T) {
	w := &mockWriter{}
	q := newTestQueue(t, w, Options{})
	q.Start()

	require.NoError(t, q.Push(context.Background(), testRecord(1)))
	require.NoError(t, q.Push(context.Background(), testRecord(1)))
	require.NoError(t, q.Drain(context.Background()))

	assert.Len(t, w.links(), 2)
}

func TestQueueRecoversWriterPanic(t *testing.T) {
	q := newTestQueue(t, panicWriter{}, Options{})
	q.Start()

	require.NoError(t, q.Push(context.Background(), testRecord(0)))
	require.NoError(t, q.Drain(context.Background()))
	assert.Equal(t, int64(1), q.Stats().WriteErrors)
}

func TestNewQueueRejectsNilWriter(t *testing.T) {
	_, err := NewQueue(nil, Options{})
	assert.Error(t, err)
}

type panicWriter struct{}

func (panicWriter) Write(*models.ListingRecord) error { panic("boom") }
func (panicWriter) Close() error                      { return nil }
func (panicWriter) Validate() error                   { return nil }
