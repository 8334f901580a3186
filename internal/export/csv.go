// Package export reads and writes flat bike records as CSV, JSON and JSON lines.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"sjsage522/bikecrawler/internal/model"
)

// Columns is the CSV header, in order
var Columns = []string{
	"id", "year", "make", "model", "package", "category", "engine", "price",
	"url", "image_url", "provider", "scraped_at", "specs",
}

// WriteCSV writes bikes with a header row. specs is a JSON object, scraped_at RFC3339,
// a zero year or time an empty cell.
func WriteCSV(w io.Writer, bikes []model.Bike) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for i, b := range bikes {
		row, err := toRow(b)
		if err != nil {
			return fmt.Errorf("row %d: %w", i+1, err)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row %d: %w", i+1, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func toRow(b model.Bike) ([]string, error) {
	year := ""
	if b.Year != 0 {
		year = strconv.Itoa(b.Year)
	}
	scrapedAt := ""
	if !b.ScrapedAt.IsZero() {
		scrapedAt = b.ScrapedAt.Format(time.RFC3339Nano)
	}
	specs := ""
	if len(b.Specs) > 0 {
		data, err := json.Marshal(b.Specs)
		if err != nil {
			return nil, fmt.Errorf("failed to encode specs: %w", err)
		}
		specs = string(data)
	}

	return []string{
		b.ID, year, b.Make, b.Model, b.Package, b.Category, b.Engine, b.Price,
		b.URL, b.ImageURL, b.Provider, scrapedAt, specs,
	}, nil
}

// ReadCSV reads bikes from a CSV with a header row. Columns are matched by name, so
// files with fewer or reordered columns are accepted; unknown columns are ignored.
func ReadCSV(r io.Reader) ([]model.Bike, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		index[name] = i
	}
	if _, ok := index["make"]; !ok {
		if _, ok := index["brand"]; ok {
			index["make"] = index["brand"]
		}
	}

	var bikes []model.Bike
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV line %d: %w", line, err)
		}

		b, err := fromRow(record, index)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		bikes = append(bikes, b)
	}
	return bikes, nil
}

func fromRow(record []string, index map[string]int) (model.Bike, error) {
	get := func(column string) string {
		i, ok := index[column]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	b := model.Bike{
		ID:       get("id"),
		Make:     get("make"),
		Model:    get("model"),
		Package:  get("package"),
		Category: get("category"),
		Engine:   get("engine"),
		Price:    get("price"),
		URL:      get("url"),
		ImageURL: get("image_url"),
		Provider: get("provider"),
	}

	if year := get("year"); year != "" {
		y, err := strconv.Atoi(strings.TrimSuffix(year, ".0"))
		if err != nil {
			return model.Bike{}, fmt.Errorf("invalid year %q", year)
		}
		b.Year = y
	}

	if scrapedAt := get("scraped_at"); scrapedAt != "" {
		t, err := time.Parse(time.RFC3339Nano, scrapedAt)
		if err != nil {
			return model.Bike{}, fmt.Errorf("invalid scraped_at %q: %w", scrapedAt, err)
		}
		b.ScrapedAt = t
	}

	if specs := get("specs"); specs != "" {
		if err := json.Unmarshal([]byte(specs), &b.Specs); err != nil {
			return model.Bike{}, fmt.Errorf("invalid specs: %w", err)
		}
	}

	return b, nil
}
