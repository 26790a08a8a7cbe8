package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvString returns the trimmed value of key when it is set and non-empty.
func EnvString(key string) (string, bool) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses key as an integer when present.
func EnvInt(key string) (int, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return n, true, nil
}

// EnvDuration parses key as a time.Duration ("3s", "250ms"). A bare integer
// is read as seconds.
func EnvDuration(key string) (time.Duration, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second, true, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return d, true, nil
}

// EnvList splits a comma separated variable, dropping empty entries.
func EnvList(key string) ([]string, bool) {
	value, ok := EnvString(key)
	if !ok {
		return nil, false
	}
	return SplitList(value), true
}

// SplitList splits on commas and trims each entry.
func SplitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ApplyEnv overlays SCRAPER_* environment variables onto c.
func (c *Config) ApplyEnv() error {
	if v, ok := EnvString("SCRAPER_BASE_URL"); ok {
		c.BaseURL = v
	}
	if v, ok, err := EnvInt("SCRAPER_MIN_PRICE"); err != nil {
		return err
	} else if ok {
		c.MinPrice = v
	}
	if v, ok := EnvList("SCRAPER_SELLERS"); ok {
		c.Sellers = v
	}
	if v, ok := EnvList("SCRAPER_CATEGORIES"); ok {
		c.Categories = v
	}
	if v, ok, err := EnvInt("SCRAPER_CONCURRENCY"); err != nil {
		return err
	} else if ok {
		c.MaxConcurrent = v
	}
	if v, ok, err := EnvDuration("SCRAPER_DELAY"); err != nil {
		return err
	} else if ok {
		c.BatchDelay = v
	}
	if v, ok, err := EnvDuration("SCRAPER_TIMEOUT"); err != nil {
		return err
	} else if ok {
		c.Timeout = v
	}
	if v, ok := EnvString("SCRAPER_STOP_POLICY"); ok {
		c.StopPolicy = strings.ToLower(v)
	}
	if v, ok := EnvString("SCRAPER_OUTPUT"); ok {
		c.OutputFile = v
	}
	if v, ok := EnvString("SCRAPER_FORMAT"); ok {
		c.OutputFormat = strings.ToLower(v)
	}
	if v, ok := EnvString("SCRAPER_REDIS_ADDR"); ok {
		c.RedisAddr = v
	}
	if v, ok := EnvString("SCRAPER_REDIS_STREAM"); ok {
		c.RedisStream = v
	}
	if v, ok := EnvString("SCRAPER_METRICS_ADDR"); ok {
		c.MetricsAddr = v
	}
	return nil
}
