package scraper

import (
	"context"
	"fmt"

	"github.com/aluiziolira/go-scrape-watchcount/models"
	"github.com/aluiziolira/go-scrape-watchcount/parser"
)

// Discoverer reads the declared result count from the first results page.
type Discoverer struct {
	fetcher   PageFetcher
	addresser Addresser
	metrics   *Metrics
}

func NewDiscoverer(fetcher PageFetcher, addresser Addresser, metrics *Metrics) *Discoverer {
	return &Discoverer{fetcher: fetcher, addresser: addresser, metrics: metrics}
}

// Discover issues exactly one request at offset 0. Errors wrap either
// ErrDiscoveryFetch or parser.ErrTotalNotFound; there is no retry.
func (d *Discoverer) Discover(ctx context.Context, category models.Category, seller string) (int, error) {
	target := d.addresser.Target(category, seller, 0)
	d.metrics.IncRequest("discovery")

	page, err := d.fetcher.Fetch(ctx, target)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDiscoveryFetch, err)
	}

	total, err := parser.ParseTotal(page.Body)
	if err != nil {
		return 0, fmt.Errorf("discover %s: %w", target, err)
	}
	return total, nil
}
