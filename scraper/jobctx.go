package scraper

import (
	"log/slog"
	"sync/atomic"

	"github.com/aluiziolira/go-scrape-watchcount/models"
)

// JobContext is handed to every task of one crawl job. It carries the job
// logger and the stop cell, which only ever moves from false to true.
type JobContext struct {
	Job    models.CrawlJob
	Logger *slog.Logger

	stop atomic.Bool
}

// NewJobContext derives a job-scoped logger from logger.
func NewJobContext(job models.CrawlJob, logger *slog.Logger) *JobContext {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobContext{
		Job: job,
		Logger: logger.With(
			slog.String("seller", job.Seller),
			slog.String("category", job.Category.Slug()),
		),
	}
}

// SignalStop raises the stop cell and reports whether this call raised it.
func (jc *JobContext) SignalStop() bool {
	return jc.stop.CompareAndSwap(false, true)
}

// Stopped reports whether any task raised the stop cell.
func (jc *JobContext) Stopped() bool {
	return jc.stop.Load()
}
