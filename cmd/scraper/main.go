package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aluiziolira/go-scrape-watchcount/config"
	"github.com/aluiziolira/go-scrape-watchcount/models"
	"github.com/aluiziolira/go-scrape-watchcount/pipeline"
	"github.com/aluiziolira/go-scrape-watchcount/scraper"
)

func main() {
	defaultCfg := config.DefaultConfig()

	configPath := flag.String("config", "", "YAML config file")
	sellers := flag.String("seller", "", "Comma-separated seller ids")
	categories := flag.String("category", "", "Comma-separated categories (name or code), or \"all\"")
	concurrency := flag.Int("concurrency", defaultCfg.MaxConcurrent, fmt.Sprintf("Pages fetched per batch (1-%d)", config.MaxConcurrentLimit))
	delay := flag.Duration("delay", defaultCfg.BatchDelay, "Pause between batches")
	rate := flag.Float64("rate", defaultCfg.RequestRate, "Client-side request rate limit per second (0 = off)")
	timeout := flag.Duration("timeout", defaultCfg.Timeout, "Per-request timeout")
	minPrice := flag.Int("min-price", defaultCfg.MinPrice, "Minimum listing price filter")
	stopPolicy := flag.String("stop-policy", defaultCfg.StopPolicy, "Zero-watcher stop scope: job, seller, or off")
	dedupe := flag.Int("dedupe", defaultCfg.DedupeMaxSize, "Drop repeated links among the last N records (0 = off)")
	outputFile := flag.String("output", defaultCfg.OutputFile, "Output file path")
	outputFormat := flag.String("format", defaultCfg.OutputFormat, "Output format: csv, json, dual, xlsx, sqlite, or redis")
	redisAddr := flag.String("redis-addr", defaultCfg.RedisAddr, "Redis address for -format redis")
	redisStream := flag.String("redis-stream", defaultCfg.RedisStream, "Redis stream for -format redis")
	baseURL := flag.String("base-url", defaultCfg.BaseURL, "Site base URL")
	metricsAddr := flag.String("metrics-addr", defaultCfg.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	verbose := flag.Bool("v", false, "Enable verbose logging")

	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	cfg := config.DefaultConfig()
	if *configPath != "" {
		if err := cfg.LoadFile(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid environment: %v\n", err)
		os.Exit(1)
	}

	// Only flags given on the command line override file and env values.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "seller":
			cfg.Sellers = config.SplitList(*sellers)
		case "category":
			cfg.Categories = config.SplitList(*categories)
		case "concurrency":
			cfg.MaxConcurrent = *concurrency
		case "delay":
			cfg.BatchDelay = *delay
		case "rate":
			cfg.RequestRate = *rate
		case "timeout":
			cfg.Timeout = *timeout
		case "min-price":
			cfg.MinPrice = *minPrice
		case "stop-policy":
			cfg.StopPolicy = strings.ToLower(*stopPolicy)
		case "dedupe":
			cfg.DedupeMaxSize = *dedupe
		case "output":
			cfg.OutputFile = *outputFile
		case "format":
			cfg.OutputFormat = strings.ToLower(*outputFormat)
		case "redis-addr":
			cfg.RedisAddr = *redisAddr
		case "redis-stream":
			cfg.RedisStream = *redisStream
		case "base-url":
			cfg.BaseURL = *baseURL
		case "metrics-addr":
			cfg.MetricsAddr = *metricsAddr
		case "v":
			cfg.Verbose = *verbose
		}
	})

	applyOutputExtension(cfg)

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if err := cfg.ValidateRun(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}
	targets, err := resolveCategories(cfg.Categories)
	if err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, finishing the current batch")
	}()

	runID := uuid.NewString()
	metrics := scraper.NewMetrics()

	fetcher, err := scraper.NewCollyFetcher(cfg, metrics)
	if err != nil {
		slog.Error("initialising fetcher", slog.Any("error", err))
		os.Exit(1)
	}

	writer, err := createWriter(ctx, cfg, runID)
	if err != nil {
		slog.Error("creating writer", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := writer.Close(); err != nil {
			slog.Error("close writer", slog.Any("error", err))
		}
	}()

	queue, err := pipeline.NewQueue(writer, pipeline.Options{
		Size:          cfg.QueueSize,
		DedupeMaxSize: cfg.DedupeMaxSize,
		Logger:        logger.With(slog.String("run_id", runID)),
		OnWriteError:  metrics.QueueWriteError,
	})
	if err != nil {
		slog.Error("creating queue", slog.Any("error", err))
		os.Exit(1)
	}
	if cfg.Verbose {
		queue.StartMetricsReporting(10 * time.Second)
	}

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metricsRouter(metrics),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	crawler := scraper.NewCrawler(cfg, fetcher, queue, metrics, logger)
	crawler.RunID = runID

	result, runErr := crawler.Run(ctx, cfg.Sellers, targets)
	if runErr != nil {
		slog.Error("crawl ended early", slog.Any("error", runErr))
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	if result == nil {
		os.Exit(1)
	}
	if err := writer.Validate(); err != nil {
		slog.Error("output validation failed", slog.Any("error", err))
	}

	printSummary(result, queue.Stats(), outputTarget(cfg))
}

func resolveCategories(keys []string) ([]models.Category, error) {
	for _, key := range keys {
		if strings.EqualFold(key, "all") {
			return models.Categories, nil
		}
	}
	return models.LookupCategories(keys)
}

func createWriter(ctx context.Context, cfg *config.Config, runID string) (pipeline.OutputWriter, error) {
	switch cfg.OutputFormat {
	case "json":
		return pipeline.NewJSONWriter(cfg.OutputFile)
	case "csv":
		return pipeline.NewCSVWriter(cfg.OutputFile)
	case "dual":
		return pipeline.NewDualWriter(cfg.OutputFile, pipeline.DualJSONName(cfg.OutputFile))
	case "xlsx":
		return pipeline.NewExcelWriter(cfg.OutputFile)
	case "sqlite":
		return pipeline.NewSQLiteWriter(cfg.OutputFile)
	case "redis":
		return pipeline.NewRedisWriter(ctx, cfg.RedisAddr, cfg.RedisStream, runID)
	default:
		return nil, fmt.Errorf("unsupported format: %s", cfg.OutputFormat)
	}
}

// applyOutputExtension swaps a .csv output path for the extension the chosen
// format expects.
func applyOutputExtension(cfg *config.Config) {
	ext, ok := map[string]string{
		"json":   ".jsonl",
		"xlsx":   ".xlsx",
		"sqlite": ".db",
	}[cfg.OutputFormat]
	if !ok || filepath.Ext(cfg.OutputFile) != ".csv" {
		return
	}
	cfg.OutputFile = strings.TrimSuffix(cfg.OutputFile, ".csv") + ext
}

func outputTarget(cfg *config.Config) string {
	if cfg.OutputFormat == "redis" {
		return fmt.Sprintf("redis://%s/%s", cfg.RedisAddr, cfg.RedisStream)
	}
	return cfg.OutputFile
}

func metricsRouter(metrics *scraper.Metrics) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	return r
}

func printSummary(result *models.CrawlResult, stats pipeline.Stats, output string) {
	separator := "--------------------------------------------------"
	duration := result.EndTime.Sub(result.StartTime)

	fmt.Println("\n" + separator)
	fmt.Println("Crawl complete")
	fmt.Printf("  Run id:        %s\n", result.RunID)
	fmt.Printf("  Jobs:          %d\n", len(result.Jobs))
	fmt.Printf("  Listings:      %d\n", result.TotalCount)
	fmt.Printf("  Written:       %d\n", stats.Processed)
	fmt.Printf("  Pages:         %d (%d failed)\n", result.PageCount, result.FailedPages)

	stopped := 0
	for _, job := range result.Jobs {
		if job.Stopped {
			stopped++
		}
	}
	fmt.Printf("  Stopped early: %d\n", stopped)
	if stats.WriteErrors > 0 {
		fmt.Printf("  Write errors:  %d\n", stats.WriteErrors)
	}
	if len(result.ErrorsByType) > 0 {
		fmt.Printf("  Error types:   %v\n", result.ErrorsByType)
	}
	if len(stats.Dropped) > 0 {
		fmt.Printf("  Dropped:       %v\n", stats.Dropped)
	}
	fmt.Printf("  Duration:      %v\n", duration.Round(time.Millisecond))
	if secs := duration.Seconds(); secs > 0 {
		fmt.Printf("  Items/sec:     %.2f\n", float64(result.TotalCount)/secs)
	}
	fmt.Printf("  Output:        %s\n", output)
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
