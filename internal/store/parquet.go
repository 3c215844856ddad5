package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
)

// Compile-time interface check.
var _ CandleStore = (*ParquetStore)(nil)

// ParquetStore implements CandleStore using Parquet files on disk.
type ParquetStore struct {
	DataDir string
	// Location selects the calendar day a candle is filed under. Defaults
	// to UTC.
	Location *time.Location
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir, Location: time.UTC}
}

// ---------------------------------------------------------------------------
// CandleStore implementation
// ---------------------------------------------------------------------------

// WriteCandles writes candles to Parquet files organized by instrument and
// day. Each instrument+day combination produces a separate file at:
//
//	<DataDir>/<EXCHANGE>/candles/<TOKEN>/<YYYY-MM-DD>.parquet
func (s *ParquetStore) WriteCandles(_ context.Context, candles []CandleRecord) error {
	if len(candles) == 0 {
		return nil
	}

	type key struct {
		exchange string
		token    string
		date     string // YYYY-MM-DD
	}
	groups := make(map[key][]CandleRecord)
	for _, c := range candles {
		day := time.UnixMilli(c.Timestamp).In(s.location()).Format("2006-01-02")
		k := key{exchange: c.Exchange, token: c.Token, date: day}
		groups[k] = append(groups[k], c)
	}

	for k, records := range groups {
		day, _ := time.ParseInLocation("2006-01-02", k.date, s.location())
		path := s.candlePath(k.exchange, k.token, day)

		// Read existing records to merge.
		existing, _ := readParquetFile[CandleRecord](path)
		merged := mergeCandleRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing candles for %s/%s/%s: %w", k.exchange, k.token, k.date, err)
		}
	}
	return nil
}

// ReadCandles reads candles from the day files covering [start, end].
func (s *ParquetStore) ReadCandles(_ context.Context, exchange, token string, start, end time.Time) ([]CandleRecord, error) {
	loc := s.location()
	first := start.In(loc)
	first = time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, loc)

	candles := []CandleRecord{}
	for d := first; !d.After(end); d = d.AddDate(0, 0, 1) {
		records, err := readParquetFile[CandleRecord](s.candlePath(exchange, token, d))
		if err != nil {
			// No file for this day.
			continue
		}
		for _, r := range records {
			ts := time.UnixMilli(r.Timestamp)
			if !ts.Before(start) && !ts.After(end) {
				candles = append(candles, r)
			}
		}
	}
	return candles, nil
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// candlePath returns the filesystem path for a candle Parquet file.
func (s *ParquetStore) candlePath(exchange, token string, day time.Time) string {
	date := day.In(s.location()).Format("2006-01-02")
	return filepath.Join(s.DataDir, strings.ToUpper(exchange), "candles", token, date+".parquet")
}

func (s *ParquetStore) location() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeCandleRecords deduplicates candles by (exchange, token, timestamp),
// preferring new records over existing ones. Results are sorted by time.
func mergeCandleRecords(existing, incoming []CandleRecord) []CandleRecord {
	type key struct {
		exchange string
		token    string
		ts       int64
	}
	seen := make(map[key]CandleRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key{r.Exchange, r.Token, r.Timestamp}] = r
	}
	for _, r := range incoming {
		seen[key{r.Exchange, r.Token, r.Timestamp}] = r
	}

	merged := make([]CandleRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
