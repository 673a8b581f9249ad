package dataset

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// LoadFile reads a candle series from a CSV or JSON file, dispatching
// on extension.
func LoadFile(path string, interval time.Duration) (*Series, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return loadCSV(path, interval)
	case ".json":
		return loadJSON(path, interval)
	default:
		return nil, fmt.Errorf("unsupported data file extension: %s", path)
	}
}

// loadCSV expects header time,open,high,low,close,volume with RFC3339
// or unix-second timestamps.
func loadCSV(path string, interval time.Duration) (*Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open data file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("csv %s has no data rows", path)
	}

	candles := make([]Candle, 0, len(records)-1)
	for i, rec := range records[1:] {
		if len(rec) < 6 {
			return nil, fmt.Errorf("csv row %d has %d columns, want 6", i+2, len(rec))
		}
		ts, err := parseTimestamp(rec[0])
		if err != nil {
			return nil, fmt.Errorf("csv row %d: %w", i+2, err)
		}
		values := make([]float64, 5)
		for j := 0; j < 5; j++ {
			values[j], err = strconv.ParseFloat(strings.TrimSpace(rec[j+1]), 64)
			if err != nil {
				return nil, fmt.Errorf("csv row %d column %d: %w", i+2, j+2, err)
			}
		}
		candles = append(candles, Candle{
			Time: ts, Open: values[0], High: values[1], Low: values[2],
			Close: values[3], Volume: values[4],
		})
	}
	return NewSeries(candles, interval)
}

func loadJSON(path string, interval time.Duration) (*Series, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read data file: %w", err)
	}
	var candles []Candle
	if err := json.Unmarshal(data, &candles); err != nil {
		return nil, fmt.Errorf("failed to parse candles: %w", err)
	}
	return NewSeries(candles, interval)
}

func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(raw, 10, 64); err == nil {
		// Millisecond epochs are 13 digits.
		if unix > 1e12 {
			return time.UnixMilli(unix).UTC(), nil
		}
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", raw)
}
