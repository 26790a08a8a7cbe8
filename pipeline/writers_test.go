package pipeline

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/aluiziolira/go-scrape-watchcount/models"
)

func sampleRecord() *models.ListingRecord {
	return &models.ListingRecord{
		Price:       "$1250.00",
		Link:        "https://example.test/itm/1",
		Watchers:    "1204",
		Title:       "Vintage Omega Seamaster 1968",
		StartDate:   "Jan 1 2024",
		EndDate:     "Jan 8 2024",
		RunningTime: "7 days 2 hours",
	}
}

func TestCSVWriterWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "listings.csv")

	writer, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}
	if err := writer.Write(sampleRecord()); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate csv: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close csv: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records=%d, want 2", len(records))
	}
	if records[0][0] != "Price" || records[0][1] != "Shop Now Link" || records[0][6] != "Running Time" {
		t.Fatalf("unexpected header: %v", records[0])
	}
	if records[1][3] != "Vintage Omega Seamaster 1968" {
		t.Fatalf("unexpected row: %v", records[1])
	}
}

func TestCSVWriterFlushesEachRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "listings.csv")
	writer, err := NewCSVWriter(path)
	require.NoError(t, err)
	defer writer.Close()

	require.NoError(t, writer.Write(sampleRecord()))

	// Readable before Close.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Vintage Omega Seamaster 1968")
}

func TestJSONWriterWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "listings.jsonl")

	writer, err := NewJSONWriter(path)
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}
	if err := writer.Write(sampleRecord()); err != nil {
		t.Fatalf("write json: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close json: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open json: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	count := 0
	for scanner.Scan() {
		var decoded models.ListingRecord
		if err := json.Unmarshal(scanner.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid json line: %v", err)
		}
		if decoded.Link != sampleRecord().Link {
			t.Fatalf("link=%q", decoded.Link)
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan json: %v", err)
	}
	if count != 1 {
		t.Fatalf("json lines=%d, want 1", count)
	}
}

func TestDualWriterWrite(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "listings.csv")
	jsonPath := DualJSONName(csvPath)
	assert.Equal(t, filepath.Join(dir, "listings.json"), jsonPath)

	writer, err := NewDualWriter(csvPath, jsonPath)
	if err != nil {
		t.Fatalf("create dual writer: %v", err)
	}
	if err := writer.Write(sampleRecord()); err != nil {
		t.Fatalf("write dual: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close dual: %v", err)
	}

	if info, err := os.Stat(csvPath); err != nil || info.Size() == 0 {
		t.Fatalf("csv file missing or empty")
	}
	if info, err := os.Stat(jsonPath); err != nil || info.Size() == 0 {
		t.Fatalf("json file missing or empty")
	}
}

type failingWriter struct{ err error }

func (f failingWriter) Write(*models.ListingRecord) error { return f.err }
func (f failingWriter) Close() error                      { return nil }
func (f failingWriter) Validate() error                   { return f.err }

func TestMultiWriterContinuesPastFailure(t *testing.T) {
	sinkErr := errors.New("disk full")
	mem := NewMemoryWriter()
	mw := NewMultiWriter(failingWriter{err: sinkErr}, mem)

	err := mw.Write(sampleRecord())
	assert.ErrorIs(t, err, sinkErr)
	assert.Equal(t, 1, mem.Len())
	assert.ErrorIs(t, mw.Validate(), sinkErr)
	assert.NoError(t, mw.Close())
}

func TestMemoryWriterReturnsCopy(t *testing.T) {
	mem := NewMemoryWriter()
	require.NoError(t, mem.Write(sampleRecord()))

	records := mem.Records()
	records[0].Title = "changed"
	assert.Equal(t, "Vintage Omega Seamaster 1968", mem.Records()[0].Title)
}

func TestExcelWriterWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "listings.xlsx")

	writer, err := NewExcelWriter(path)
	require.NoError(t, err)
	require.NoError(t, writer.Write(sampleRecord()))
	require.NoError(t, writer.Write(sampleRecord()))
	require.NoError(t, writer.Validate())
	assert.Equal(t, 2, writer.Rows())
	require.NoError(t, writer.Close())

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(excelSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, models.Header, rows[0])
	assert.Equal(t, sampleRecord().Fields(), rows[1])
}

func TestSQLiteWriterWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "listings.db")

	writer, err := NewSQLiteWriter(path)
	require.NoError(t, err)
	writer.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	require.NoError(t, writer.Write(sampleRecord()))
	require.NoError(t, writer.Validate())

	n, err := writer.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var title, scrapedAt string
	err = writer.db.QueryRow(`SELECT title, scraped_at FROM listings WHERE link = ?`, sampleRecord().Link).
		Scan(&title, &scrapedAt)
	require.NoError(t, err)
	assert.Equal(t, "Vintage Omega Seamaster 1968", title)
	assert.Equal(t, "2024-01-02T03:04:05Z", scrapedAt)

	require.NoError(t, writer.Close())
}

func TestRedisWriterWrite(t *testing.T) {
	ctx := context.Background()
	const stream = "test_listings"

	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()
	if _, err := client.Ping(ctx).Result(); err != nil {
		t.Skip("Redis is not available, skipping test")
	}
	client.Del(ctx, stream)
	defer client.Del(ctx, stream)

	writer, err := NewRedisWriter(ctx, "localhost:6379", stream, "run-1")
	require.NoError(t, err)
	defer writer.Close()

	require.NoError(t, writer.Write(sampleRecord()))
	require.NoError(t, writer.Validate())

	entries, err := client.XRange(ctx, stream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "run-1", entries[0].Values["run_id"])
	assert.Equal(t, sampleRecord().Link, entries[0].Values["link"])
}

func TestExcelWriterRejectsOtherExtensions(t *testing.T) {
	_, err := NewExcelWriter(filepath.Join(t.TempDir(), "listings.csv"))
	assert.Error(t, err)
}
