package scraper

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"golang.org/x/time/rate"

	"github.com/aluiziolira/go-scrape-watchcount/config"
)

const (
	ctxBody        = "body"
	ctxContentType = "content_type"
	ctxStatus      = "status"
)

// Page is a fetched results page.
type Page struct {
	URL         string
	Body        []byte
	ContentType string
	StatusCode  int
}

// PageFetcher issues one GET per call. Implementations classify failures
// into the typed errors in this package and never panic.
type PageFetcher interface {
	Fetch(ctx context.Context, target string) (*Page, error)
}

// CollyFetcher is a PageFetcher backed by a synchronous colly collector.
// It is safe for concurrent use; every call carries its own colly context.
type CollyFetcher struct {
	collector *colly.Collector
	limiter   *rate.Limiter
	metrics   *Metrics
}

// NewCollyFetcher builds a fetcher configured from cfg.
func NewCollyFetcher(cfg *config.Config, metrics *Metrics) (*CollyFetcher, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(parsed.Hostname()),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: config.MaxConcurrentLimit,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.MaxConcurrent,
	}); err != nil {
		return nil, fmt.Errorf("configure limits: %w", err)
	}

	collector.OnResponse(func(r *colly.Response) {
		r.Ctx.Put(ctxBody, r.Body)
		r.Ctx.Put(ctxStatus, r.StatusCode)
		r.Ctx.Put(ctxContentType, responseContentType(r.Headers))
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.Ctx != nil {
			r.Ctx.Put(ctxStatus, r.StatusCode)
		}
	})

	f := &CollyFetcher{
		collector: collector,
		metrics:   metrics,
	}
	if cfg.RequestRate > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(cfg.RequestRate), 1)
	}
	return f, nil
}

// WithTransport swaps the HTTP transport, e.g. for tests.
func (f *CollyFetcher) WithTransport(rt http.RoundTripper) {
	f.collector.WithTransport(rt)
}

// Fetch performs one GET against target.
func (f *CollyFetcher) Fetch(ctx context.Context, target string) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("wait for rate limiter: %w", err)
		}
	}

	reqCtx := colly.NewContext()
	start := time.Now()
	err := f.collector.Request(http.MethodGet, target, nil, reqCtx, nil)
	f.metrics.ObserveDuration(time.Since(start))

	status, _ := reqCtx.GetAny(ctxStatus).(int)
	if err != nil {
		return nil, classifyError(err, status)
	}

	body, _ := reqCtx.GetAny(ctxBody).([]byte)
	contentType, _ := reqCtx.GetAny(ctxContentType).(string)
	return &Page{
		URL:         target,
		Body:        body,
		ContentType: contentType,
		StatusCode:  status,
	}, nil
}

// colly transcodes bodies whose Content-Type names a charset, so the page is
// reported as UTF-8 in that case. Otherwise the extractor sniffs the body.
func responseContentType(h *http.Header) string {
	if h == nil {
		return ""
	}
	contentType := h.Get("Content-Type")
	if strings.Contains(strings.ToLower(contentType), "charset") {
		return "text/html; charset=utf-8"
	}
	return contentType
}
