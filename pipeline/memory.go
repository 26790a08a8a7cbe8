package pipeline

import (
	"sync"

	"github.com/aluiziolira/go-scrape-watchcount/models"
)

// MemoryWriter accumulates records in memory for callers that want the
// whole result set instead of a stream.
type MemoryWriter struct {
	mu      sync.Mutex
	records []models.ListingRecord
}

// NewMemoryWriter returns an empty in-memory sink.
func NewMemoryWriter() *MemoryWriter {
	return &MemoryWriter{}
}

func (mw *MemoryWriter) Write(record *models.ListingRecord) error {
	mw.mu.Lock()
	mw.records = append(mw.records, *record)
	mw.mu.Unlock()
	return nil
}

func (mw *MemoryWriter) Close() error { return nil }

func (mw *MemoryWriter) Validate() error { return nil }

// Records returns a copy of everything written so far.
func (mw *MemoryWriter) Records() []models.ListingRecord {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	out := make([]models.ListingRecord, len(mw.records))
	copy(out, mw.records)
	return out
}

// Len reports the number of records written.
func (mw *MemoryWriter) Len() int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	return len(mw.records)
}
