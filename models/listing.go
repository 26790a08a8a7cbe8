// Package models defines data structures for the scraper.
package models

import "time"

// Header is the column order used by tabular outputs.
var Header = []string{
	"Price",
	"Shop Now Link",
	"Watchers",
	"Title",
	"Start Date",
	"End Date",
	"Running Time",
}

// ListingRecord represents one auction listing extracted from a results page.
// Every field holds cleaned text.
type ListingRecord struct {
	Price       string `csv:"Price" json:"price"`
	Link        string `csv:"Shop Now Link" json:"link"`
	Watchers    string `csv:"Watchers" json:"watchers"`
	Title       string `csv:"Title" json:"title"`
	StartDate   string `csv:"Start Date" json:"start_date"`
	EndDate     string `csv:"End Date" json:"end_date"`
	RunningTime string `csv:"Running Time" json:"running_time"`
}

// Fields returns the record values in Header order.
func (r *ListingRecord) Fields() []string {
	return []string{
		r.Price,
		r.Link,
		r.Watchers,
		r.Title,
		r.StartDate,
		r.EndDate,
		r.RunningTime,
	}
}

// CrawlTarget fully determines one page request.
type CrawlTarget struct {
	Category Category
	Seller   string
	Offset   int
}

// CrawlJob is one (category, seller) pair.
type CrawlJob struct {
	Category Category
	Seller   string
}

// JobResult summarises a single crawl job.
type JobResult struct {
	Job           CrawlJob
	DeclaredTotal int
	PagesPlanned  int
	PagesFetched  int
	PagesFailed   int
	Batches       int
	Records       int
	RowErrors     int
	Stopped       bool
	DiscoveryErr  error
	ErrorsByType  map[string]int
	Duration      time.Duration
}

// CrawlResult holds the overall result of a crawl run.
type CrawlResult struct {
	RunID        string
	Jobs         []*JobResult
	StartTime    time.Time
	EndTime      time.Time
	TotalCount   int
	PageCount    int
	FailedPages  int
	ErrorsByType map[string]int
}

// Add folds a finished job into the run totals.
func (r *CrawlResult) Add(job *JobResult) {
	if job == nil {
		return
	}
	if r.ErrorsByType == nil {
		r.ErrorsByType = make(map[string]int)
	}
	r.Jobs = append(r.Jobs, job)
	r.TotalCount += job.Records
	r.PageCount += job.PagesFetched
	r.FailedPages += job.PagesFailed
	for k, v := range job.ErrorsByType {
		r.ErrorsByType[k] += v
	}
}
