package scraper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-watchcount/config"
	"github.com/aluiziolira/go-scrape-watchcount/models"
	"github.com/aluiziolira/go-scrape-watchcount/parser"
)

// RecordSink receives extracted records. *pipeline.Queue implements it.
type RecordSink interface {
	Push(ctx context.Context, record *models.ListingRecord) error
}

// Offsets returns 0, pageSize, 2*pageSize, ... below min(total, ceiling).
// A non-positive ceiling means no ceiling.
func Offsets(total, pageSize, ceiling int) []int {
	if total <= 0 || pageSize <= 0 {
		return nil
	}
	limit := total
	if ceiling > 0 && ceiling < limit {
		limit = ceiling
	}
	offsets := make([]int, 0, (limit+pageSize-1)/pageSize)
	for offset := 0; offset < limit; offset += pageSize {
		offsets = append(offsets, offset)
	}
	return offsets
}

// Batches splits offsets into consecutive groups of at most size.
func Batches(offsets []int, size int) [][]int {
	if size <= 0 {
		size = 1
	}
	batches := make([][]int, 0, (len(offsets)+size-1)/size)
	for start := 0; start < len(offsets); start += size {
		end := min(start+size, len(offsets))
		batches = append(batches, offsets[start:end])
	}
	return batches
}

// Scheduler runs one crawl job: discovery, then fixed-size page batches.
type Scheduler struct {
	discoverer *Discoverer
	fetcher    PageFetcher
	addresser  Addresser
	sink       RecordSink
	metrics    *Metrics

	maxConcurrent    int
	pageSize         int
	offsetCeiling    int
	batchDelay       time.Duration
	stopPolicy       string
	discrepancyRatio float64

	sleep func(ctx context.Context, d time.Duration) error
}

// NewScheduler wires a scheduler from cfg.
func NewScheduler(cfg *config.Config, fetcher PageFetcher, sink RecordSink, metrics *Metrics) *Scheduler {
	addresser := NewAddresser(cfg.BaseURL, cfg.MinPrice)
	return &Scheduler{
		discoverer:       NewDiscoverer(fetcher, addresser, metrics),
		fetcher:          fetcher,
		addresser:        addresser,
		sink:             sink,
		metrics:          metrics,
		maxConcurrent:    cfg.MaxConcurrent,
		pageSize:         cfg.PageSize,
		offsetCeiling:    cfg.OffsetCeiling,
		batchDelay:       cfg.BatchDelay,
		stopPolicy:       cfg.StopPolicy,
		discrepancyRatio: cfg.DiscrepancyRatio,
		sleep:            sleepContext,
	}
}

type pageOutcome struct {
	fetched   bool
	records   int
	rowErrors int
	errType   string
}

// Run executes the job described by jc and always returns a result. Fetch,
// structure and row failures are logged and counted, never returned.
func (s *Scheduler) Run(ctx context.Context, jc *JobContext) *models.JobResult {
	start := time.Now()
	logger := jc.Logger
	result := &models.JobResult{
		Job:          jc.Job,
		ErrorsByType: make(map[string]int),
	}
	defer func() {
		result.Duration = time.Since(start)
	}()

	logger.Info("job started")

	total, err := s.discoverer.Discover(ctx, jc.Job.Category, jc.Job.Seller)
	if err != nil {
		label := errorTypeLabel(err)
		result.DiscoveryErr = err
		result.ErrorsByType[label]++
		s.metrics.IncError(label)
		logger.Warn("discovery failed",
			slog.String("error_type", label),
			slog.Any("error", err),
		)
		return result
	}
	result.DeclaredTotal = total
	logger.Info("discovery complete", slog.Int("declared_total", total))
	if total == 0 {
		logger.Info("job finished", slog.String("reason", "no results"))
		return result
	}

	offsets := Offsets(total, s.pageSize, s.offsetCeiling)
	batches := Batches(offsets, s.maxConcurrent)
	result.PagesPlanned = len(offsets)

	for i, batch := range batches {
		if i > 0 {
			if err := s.sleep(ctx, s.batchDelay); err != nil {
				logger.Warn("job interrupted", slog.Any("error", err))
				break
			}
		}
		if err := ctx.Err(); err != nil {
			logger.Warn("job interrupted", slog.Any("error", err))
			break
		}

		s.runBatch(ctx, jc, batch, result)
		result.Batches++
		s.metrics.IncBatch()

		if jc.Stopped() {
			result.Stopped = true
			logger.Info("stop signal raised, ending job",
				slog.Int("batch", i+1),
				slog.Int("batches_skipped", len(batches)-i-1),
			)
			break
		}
	}

	s.checkDiscrepancy(jc, result)
	logger.Info("job finished",
		slog.Int("records", result.Records),
		slog.Int("pages_fetched", result.PagesFetched),
		slog.Int("pages_failed", result.PagesFailed),
		slog.Bool("stopped", result.Stopped),
	)
	return result
}

func (s *Scheduler) runBatch(ctx context.Context, jc *JobContext, batch []int, result *models.JobResult) {
	outcomes := make([]pageOutcome, len(batch))

	var wg sync.WaitGroup
	for i, offset := range batch {
		wg.Add(1)
		go func(i, offset int) {
			defer wg.Done()
			outcomes[i] = s.runPage(ctx, jc, offset)
		}(i, offset)
	}
	wg.Wait()

	for _, o := range outcomes {
		if o.fetched {
			result.PagesFetched++
		}
		if o.errType != "" {
			result.PagesFailed++
			result.ErrorsByType[o.errType]++
		}
		result.Records += o.records
		result.RowErrors += o.rowErrors
	}
}

func (s *Scheduler) runPage(ctx context.Context, jc *JobContext, offset int) (out pageOutcome) {
	logger := jc.Logger.With(slog.Int("offset", offset))
	defer func() {
		if r := recover(); r != nil {
			logger.Error("page task panicked", slog.Any("panic", r))
			out.errType = "panic"
		}
	}()

	target := s.addresser.Target(jc.Job.Category, jc.Job.Seller, offset)
	logger.Debug("request issued", slog.String("url", target))
	s.metrics.IncRequest("page")

	page, err := s.fetcher.Fetch(ctx, target)
	if err != nil {
		out.errType = errorTypeLabel(err)
		s.metrics.IncError(out.errType)
		logger.Warn("page fetch failed",
			slog.String("url", target),
			slog.String("error_type", out.errType),
			slog.Any("error", err),
		)
		return out
	}
	out.fetched = true

	extraction, err := parser.Extract(page.Body, page.ContentType)
	if err != nil {
		out.errType = errorTypeLabel(err)
		s.metrics.IncError(out.errType)
		logger.Warn("page extraction failed",
			slog.String("url", target),
			slog.Any("error", err),
		)
		return out
	}

	for _, rowErr := range extraction.RowErrors {
		s.metrics.IncError(errorTypeLabel(rowErr))
		logger.Warn("listing skipped", slog.Any("error", rowErr))
	}
	out.rowErrors = len(extraction.RowErrors)

	for i := range extraction.Records {
		if err := s.sink.Push(ctx, &extraction.Records[i]); err != nil {
			logger.Error("record push failed",
				slog.Int("dropped", len(extraction.Records)-i),
				slog.Any("error", err),
			)
			break
		}
		out.records++
		s.metrics.IncItems()
	}

	if extraction.Stop && s.stopPolicy != config.StopPolicyOff {
		if jc.SignalStop() {
			s.metrics.IncStopSignal()
			logger.Info("zero-watcher listing found, no further batches will start")
		}
	}
	return out
}

// checkDiscrepancy warns when far fewer records were extracted than the
// declared total promised.
func (s *Scheduler) checkDiscrepancy(jc *JobContext, result *models.JobResult) {
	if result.Stopped || s.discrepancyRatio <= 0 || result.PagesPlanned == 0 {
		return
	}
	expected := min(result.DeclaredTotal, result.PagesPlanned*s.pageSize)
	if float64(result.Records) >= s.discrepancyRatio*float64(expected) {
		return
	}
	jc.Logger.Warn("declared total disagrees with extracted records",
		slog.Int("declared_total", result.DeclaredTotal),
		slog.Int("expected", expected),
		slog.Int("records", result.Records),
	)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
