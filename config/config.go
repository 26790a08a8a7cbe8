package config

import (
	"fmt"
	"net/url"
	"time"
)

// Stop policies decide how far a zero-watcher stop signal reaches.
const (
	StopPolicyJob    = "job"
	StopPolicySeller = "seller"
	StopPolicyOff    = "off"
)

// MaxConcurrentLimit caps the per-batch fan-out.
const MaxConcurrentLimit = 15

// Config holds scraper configuration.
type Config struct {
	BaseURL          string
	MinPrice         int
	Sellers          []string
	Categories       []string
	MaxConcurrent    int
	BatchDelay       time.Duration
	RequestRate      float64
	Timeout          time.Duration
	PageSize         int
	OffsetCeiling    int
	StopPolicy       string
	DiscrepancyRatio float64
	QueueSize        int
	DedupeMaxSize    int
	OutputFile       string
	OutputFormat     string // csv, json, dual, xlsx, sqlite or redis
	RedisAddr        string
	RedisStream      string
	UserAgent        string
	Verbose          bool
	MetricsAddr      string
}

// DefaultConfig returns conservative defaults for the listing site.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:          "https://www.watchcount.com",
		MinPrice:         150,
		MaxConcurrent:    2,
		BatchDelay:       0,
		RequestRate:      0,
		Timeout:          60 * time.Second,
		PageSize:         20,
		OffsetCeiling:    2000,
		StopPolicy:       StopPolicyJob,
		DiscrepancyRatio: 0.5,
		QueueSize:        512,
		DedupeMaxSize:    0,
		OutputFile:       "output/listings.csv",
		OutputFormat:     "csv",
		RedisAddr:        "localhost:6379",
		RedisStream:      "listings",
		UserAgent:        "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		Verbose:          false,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if c.MinPrice < 0 {
		return fmt.Errorf("min price cannot be negative")
	}
	if c.MaxConcurrent <= 0 {
		return fmt.Errorf("max concurrent must be positive")
	}
	if c.MaxConcurrent > MaxConcurrentLimit {
		return fmt.Errorf("max concurrent cannot exceed %d", MaxConcurrentLimit)
	}
	if c.BatchDelay < 0 {
		return fmt.Errorf("batch delay cannot be negative")
	}
	if c.RequestRate < 0 {
		return fmt.Errorf("request rate cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page size must be positive")
	}
	if c.OffsetCeiling <= 0 {
		return fmt.Errorf("offset ceiling must be positive")
	}
	switch c.StopPolicy {
	case StopPolicyJob, StopPolicySeller, StopPolicyOff:
	default:
		return fmt.Errorf("stop policy must be job, seller, or off")
	}
	if c.DiscrepancyRatio < 0 || c.DiscrepancyRatio > 1 {
		return fmt.Errorf("discrepancy ratio must be between 0 and 1")
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("queue size must be positive")
	}
	if c.DedupeMaxSize < 0 {
		return fmt.Errorf("dedupe max size cannot be negative")
	}
	switch c.OutputFormat {
	case "csv", "json", "dual", "xlsx", "sqlite":
		if c.OutputFile == "" {
			return fmt.Errorf("output file cannot be empty")
		}
	case "redis":
		if c.RedisAddr == "" || c.RedisStream == "" {
			return fmt.Errorf("redis output needs an address and a stream")
		}
	default:
		return fmt.Errorf("output format must be csv, json, dual, xlsx, sqlite, or redis")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}

// ValidateRun checks the inputs a crawl run needs on top of Validate.
func (c *Config) ValidateRun() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if len(c.Sellers) == 0 {
		return fmt.Errorf("at least one seller is required")
	}
	if len(c.Categories) == 0 {
		return fmt.Errorf("at least one category is required")
	}
	return nil
}
