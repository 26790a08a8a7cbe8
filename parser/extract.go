package parser

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"github.com/aluiziolira/go-scrape-watchcount/models"
)

const (
	containerSelector = "div.find-results.results div.container.shrink-container"
	rowSelector       = "div.row"
	itemSelector      = "div.find-results-new-item"
	priceSelector     = "div.price"
	linkSelector      = "div.col.bold-text a[href]"
	watchersSelector  = "div.text-center"
	infoSelector      = "div.general-info-container"
	datesSelector     = "div.row.normal-text"
)

// ErrContainerMissing indicates the page has no results container.
// The page is unusable; this is not the same as running out of results.
var ErrContainerMissing = errors.New("parser: results container not found")

// MissingFieldError reports a listing block lacking a required field.
type MissingFieldError struct {
	Index int
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("listing %d: missing %s", e.Index, e.Field)
}

// InvalidFieldError reports a field that was found but could not be parsed.
type InvalidFieldError struct {
	Index int
	Field string
	Value string
	Err   error
}

func (e *InvalidFieldError) Error() string {
	return fmt.Sprintf("listing %d: invalid %s %q: %v", e.Index, e.Field, e.Value, e.Err)
}

func (e *InvalidFieldError) Unwrap() error {
	return e.Err
}

// Extraction is the outcome of parsing one results page.
type Extraction struct {
	// Records are in document order.
	Records []models.ListingRecord
	// RowErrors holds one entry per skipped listing.
	RowErrors []error
	// Stop is set when a listing reports zero watchers.
	Stop bool
}

// Extract parses a results page. A missing results container yields
// ErrContainerMissing; a malformed listing is skipped and reported in
// RowErrors without aborting the page.
func Extract(body []byte, contentType string) (*Extraction, error) {
	reader, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	container := doc.Find(containerSelector).First()
	if container.Length() == 0 {
		return &Extraction{}, ErrContainerMissing
	}

	out := &Extraction{}
	container.ChildrenFiltered(rowSelector).Each(func(i int, row *goquery.Selection) {
		record, watchers, err := extractRecord(i, row)
		if err != nil {
			out.RowErrors = append(out.RowErrors, err)
			return
		}
		if watchers == 0 {
			out.Stop = true
		}
		out.Records = append(out.Records, *record)
	})
	return out, nil
}

func extractRecord(index int, row *goquery.Selection) (*models.ListingRecord, int, error) {
	item := row.Find(itemSelector).First()
	if item.Length() == 0 {
		return nil, 0, &MissingFieldError{Index: index, Field: "listing"}
	}

	price, ok := firstText(item, priceSelector)
	if !ok {
		return nil, 0, &MissingFieldError{Index: index, Field: "price"}
	}

	link, ok := item.Find(linkSelector).First().Attr("href")
	link = StripThousands(link)
	if !ok || link == "" {
		return nil, 0, &MissingFieldError{Index: index, Field: "link"}
	}

	watchersText, ok := firstText(item, watchersSelector)
	if !ok {
		return nil, 0, &MissingFieldError{Index: index, Field: "watchers"}
	}
	watchers := NormalizeWatchers(watchersText)
	count, err := strconv.Atoi(watchers)
	if err != nil {
		return nil, 0, &InvalidFieldError{Index: index, Field: "watchers", Value: watchers, Err: err}
	}

	title, ok := firstText(item.Find(infoSelector).First(), rowSelector)
	if !ok {
		return nil, 0, &MissingFieldError{Index: index, Field: "title"}
	}
	title = strings.Replace(title, "Start: ", "", 1)

	dates := item.Find(datesSelector)
	fields := [3]string{}
	for i, name := range []string{"start date", "end date", "running time"} {
		text := strings.TrimSpace(dates.Eq(i).Text())
		if dates.Eq(i).Length() == 0 || text == "" {
			return nil, 0, &MissingFieldError{Index: index, Field: name}
		}
		fields[i] = text
	}

	record := &models.ListingRecord{
		Price:       StripThousands(price),
		Link:        link,
		Watchers:    watchers,
		Title:       StripThousands(title),
		StartDate:   NormalizeDate(trimLabel(fields[0], "Start:")),
		EndDate:     NormalizeDate(trimLabel(fields[1], "End:")),
		RunningTime: StripThousands(trimLabel(fields[2], "Running for")),
	}
	if err := ValidateRecord(record); err != nil {
		return nil, 0, &MissingFieldError{Index: index, Field: strings.TrimPrefix(err.Error(), "record missing ")}
	}
	return record, count, nil
}

func firstText(s *goquery.Selection, selector string) (string, bool) {
	found := s.Find(selector).First()
	if found.Length() == 0 {
		return "", false
	}
	text := strings.TrimSpace(found.Text())
	return text, text != ""
}
