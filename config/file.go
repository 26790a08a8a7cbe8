package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors Config for YAML files. Pointer fields distinguish
// "absent" from zero values so a file only overrides what it names.
type fileConfig struct {
	BaseURL          *string   `yaml:"base_url"`
	MinPrice         *int      `yaml:"min_price"`
	Sellers          []string  `yaml:"sellers"`
	Categories       []string  `yaml:"categories"`
	MaxConcurrent    *int      `yaml:"max_concurrent"`
	BatchDelay       *duration `yaml:"batch_delay"`
	RequestRate      *float64  `yaml:"request_rate"`
	Timeout          *duration `yaml:"timeout"`
	PageSize         *int      `yaml:"page_size"`
	OffsetCeiling    *int      `yaml:"offset_ceiling"`
	StopPolicy       *string   `yaml:"stop_policy"`
	DiscrepancyRatio *float64  `yaml:"discrepancy_ratio"`
	QueueSize        *int      `yaml:"queue_size"`
	DedupeMaxSize    *int      `yaml:"dedupe_max_size"`
	Output           struct {
		File        *string `yaml:"file"`
		Format      *string `yaml:"format"`
		RedisAddr   *string `yaml:"redis_addr"`
		RedisStream *string `yaml:"redis_stream"`
	} `yaml:"output"`
	UserAgent   *string `yaml:"user_agent"`
	MetricsAddr *string `yaml:"metrics_addr"`
}

// duration accepts "3s" style strings or bare seconds.
type duration time.Duration

func (d *duration) UnmarshalYAML(node *yaml.Node) error {
	var seconds int
	if err := node.Decode(&seconds); err == nil {
		*d = duration(time.Duration(seconds) * time.Second)
		return nil
	}
	var text string
	if err := node.Decode(&text); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(text)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = duration(parsed)
	return nil
}

// LoadFile overlays the YAML file at path onto c.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	fc.apply(c)
	return nil
}

func (fc *fileConfig) apply(c *Config) {
	setString(&c.BaseURL, fc.BaseURL)
	setInt(&c.MinPrice, fc.MinPrice)
	if len(fc.Sellers) > 0 {
		c.Sellers = fc.Sellers
	}
	if len(fc.Categories) > 0 {
		c.Categories = fc.Categories
	}
	setInt(&c.MaxConcurrent, fc.MaxConcurrent)
	if fc.BatchDelay != nil {
		c.BatchDelay = time.Duration(*fc.BatchDelay)
	}
	if fc.RequestRate != nil {
		c.RequestRate = *fc.RequestRate
	}
	if fc.Timeout != nil {
		c.Timeout = time.Duration(*fc.Timeout)
	}
	setInt(&c.PageSize, fc.PageSize)
	setInt(&c.OffsetCeiling, fc.OffsetCeiling)
	if fc.StopPolicy != nil {
		c.StopPolicy = strings.ToLower(*fc.StopPolicy)
	}
	if fc.DiscrepancyRatio != nil {
		c.DiscrepancyRatio = *fc.DiscrepancyRatio
	}
	setInt(&c.QueueSize, fc.QueueSize)
	setInt(&c.DedupeMaxSize, fc.DedupeMaxSize)
	setString(&c.OutputFile, fc.Output.File)
	if fc.Output.Format != nil {
		c.OutputFormat = strings.ToLower(*fc.Output.Format)
	}
	setString(&c.RedisAddr, fc.Output.RedisAddr)
	setString(&c.RedisStream, fc.Output.RedisStream)
	setString(&c.UserAgent, fc.UserAgent)
	setString(&c.MetricsAddr, fc.MetricsAddr)
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}
