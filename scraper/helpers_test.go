package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-watchcount/models"
)

var testCategory = models.Category{Name: "wristwatches", Code: 31387}

// resultsPage renders a results page declaring total results with one
// listing per watchers value. Links are unique per (offset, index).
func resultsPage(total, offset int, watchers ...int) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	fmt.Fprintf(&b, "<div class=\"find-results-header\">%s Results for seller acme</div>", withThousands(total))
	b.WriteString("<div class=\"find-results results\"><div class=\"container shrink-container\">")
	for i, w := range watchers {
		b.WriteString("<div class=\"row\"><div class=\"find-results-new-item\">")
		fmt.Fprintf(&b, "<div class=\"price\">$1,%03d.00</div>", offset+i)
		fmt.Fprintf(&b, "<div class=\"col bold-text\"><a href=\"https://www.example.com/itm/%d-%d\">Shop Now</a></div>", offset, i)
		fmt.Fprintf(&b, "<div class=\"text-center\">Watchers: %d</div>", w)
		b.WriteString("<div class=\"general-info-container\">")
		fmt.Fprintf(&b, "<div class=\"row\">Listing %d-%d</div>", offset, i)
		b.WriteString("<div class=\"row normal-text\">Start: Jan 1, 2024 (PST)</div>")
		b.WriteString("<div class=\"row normal-text\">End: Jan 8, 2024 (PST)</div>")
		b.WriteString("<div class=\"row normal-text\">Running for 7 days</div>")
		b.WriteString("</div></div></div>")
	}
	b.WriteString("</div></div></body></html>")
	return b.String()
}

func withThousands(n int) string {
	s := strconv.Itoa(n)
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	return s
}

type fakeResponse struct {
	body  string
	err   error
	delay time.Duration
}

// fakeFetcher answers by offset and records every call in events.
type fakeFetcher struct {
	mu          sync.Mutex
	bySeller    map[string]map[int]fakeResponse
	byOffset    map[int]fakeResponse
	events      *eventLog
	calls       int
	inFlight    int
	maxInFlight int
}

func newFakeFetcher(events *eventLog) *fakeFetcher {
	if events == nil {
		events = &eventLog{}
	}
	return &fakeFetcher{
		byOffset: make(map[int]fakeResponse),
		bySeller: make(map[string]map[int]fakeResponse),
		events:   events,
	}
}

func (f *fakeFetcher) set(offset int, resp fakeResponse) {
	f.byOffset[offset] = resp
}

func (f *fakeFetcher) setFor(seller string, offset int, resp fakeResponse) {
	if f.bySeller[seller] == nil {
		f.bySeller[seller] = make(map[int]fakeResponse)
	}
	f.bySeller[seller][offset] = resp
}

func (f *fakeFetcher) Fetch(ctx context.Context, target string) (*Page, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, err
	}
	offset, _ := strconv.Atoi(u.Query().Get("offset"))
	seller := u.Query().Get("seller")

	f.mu.Lock()
	f.calls++
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	resp, ok := f.bySeller[seller][offset]
	if !ok {
		resp, ok = f.byOffset[offset]
	}
	f.mu.Unlock()
	f.events.add("fetch")

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if resp.delay > 0 {
		time.Sleep(resp.delay)
	}
	if !ok {
		return nil, ErrNotFound{Err: fmt.Errorf("no page for %s", target)}
	}
	if resp.err != nil {
		return nil, resp.err
	}
	return &Page{URL: target, Body: []byte(resp.body), ContentType: "text/html; charset=utf-8", StatusCode: 200}, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (e *eventLog) add(event string) {
	e.mu.Lock()
	e.events = append(e.events, event)
	e.mu.Unlock()
}

func (e *eventLog) all() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.events...)
}

// collectingSink is a RecordSink that keeps every pushed record.
type collectingSink struct {
	mu      sync.Mutex
	records []models.ListingRecord
}

func (cs *collectingSink) Push(_ context.Context, record *models.ListingRecord) error {
	cs.mu.Lock()
	cs.records = append(cs.records, *record)
	cs.mu.Unlock()
	return nil
}

func (cs *collectingSink) Count() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return len(cs.records)
}

func (cs *collectingSink) Links() []string {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	out := make([]string, 0, len(cs.records))
	for _, r := range cs.records {
		out = append(out, r.Link)
	}
	return out
}

// logBuffer captures JSON log lines for assertions.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (lb *logBuffer) Write(p []byte) (int, error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.buf.Write(p)
}

func (lb *logBuffer) count(msg string) int {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return strings.Count(lb.buf.String(), fmt.Sprintf("%q:%q", "msg", msg))
}

func (lb *logBuffer) logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(lb, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
