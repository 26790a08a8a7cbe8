// Package scraper crawls watchcount result pages for seller/category pairs.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aluiziolira/go-scrape-watchcount/config"
	"github.com/aluiziolira/go-scrape-watchcount/models"
)

// Queue is the write side the crawler owns for the length of a run.
// *pipeline.Queue implements it.
type Queue interface {
	RecordSink
	Start()
	Drain(ctx context.Context) error
}

// Crawler runs one job per (seller, category) pair, strictly one at a time,
// feeding a single write queue.
type Crawler struct {
	// RunID tags every log line of a run. Empty means a new UUID per Run.
	RunID string

	cfg       *config.Config
	queue     Queue
	scheduler *Scheduler
	logger    *slog.Logger
}

// NewCrawler builds a crawler. metrics and logger may be nil.
func NewCrawler(cfg *config.Config, fetcher PageFetcher, queue Queue, metrics *Metrics, logger *slog.Logger) *Crawler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Crawler{
		cfg:       cfg,
		queue:     queue,
		scheduler: NewScheduler(cfg, fetcher, queue, metrics),
		logger:    logger,
	}
}

// Run crawls sellers in order and, for each seller, categories in order.
// The queue is started once and drained before Run returns. Cancelling ctx
// ends the run at the next batch boundary; records already pushed are still
// written.
func (c *Crawler) Run(ctx context.Context, sellers []string, categories []models.Category) (*models.CrawlResult, error) {
	if len(sellers) == 0 {
		return nil, errors.New("no sellers to crawl")
	}
	if len(categories) == 0 {
		return nil, errors.New("no categories to crawl")
	}

	runID := c.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	logger := c.logger.With(slog.String("run_id", runID))

	result := &models.CrawlResult{
		RunID:        runID,
		StartTime:    time.Now(),
		ErrorsByType: make(map[string]int),
	}

	logger.Info("crawl started",
		slog.Int("sellers", len(sellers)),
		slog.Int("categories", len(categories)),
		slog.Int("max_concurrent", c.cfg.MaxConcurrent),
		slog.Duration("batch_delay", c.cfg.BatchDelay),
		slog.String("stop_policy", c.cfg.StopPolicy),
	)

	c.queue.Start()

sellers:
	for _, seller := range sellers {
		for _, category := range categories {
			if ctx.Err() != nil {
				break sellers
			}
			jc := NewJobContext(models.CrawlJob{Category: category, Seller: seller}, logger)
			job := c.scheduler.Run(ctx, jc)
			result.Add(job)

			if job.Stopped && c.cfg.StopPolicy == config.StopPolicySeller {
				jc.Logger.Info("seller stopped, skipping remaining categories")
				break
			}
		}
	}

	drainErr := c.queue.Drain(context.WithoutCancel(ctx))
	result.EndTime = time.Now()

	logger.Info("crawl finished",
		slog.Int("jobs", len(result.Jobs)),
		slog.Int("records", result.TotalCount),
		slog.Int("pages", result.PageCount),
		slog.Int("failed_pages", result.FailedPages),
		slog.Duration("duration", result.EndTime.Sub(result.StartTime)),
	)

	if drainErr != nil {
		return result, fmt.Errorf("drain write queue: %w", drainErr)
	}
	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("crawl interrupted: %w", err)
	}
	return result, nil
}
