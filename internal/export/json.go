package export

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"sjsage522/bikecrawler/internal/model"
)

// record is the loose JSON shape of spec dumps: years may be strings, spec values numbers
type record struct {
	ID        string                     `json:"id"`
	Year      json.RawMessage            `json:"year"`
	Make      string                     `json:"make"`
	Brand     string                     `json:"brand"`
	Model     string                     `json:"model"`
	Package   string                     `json:"package"`
	Category  string                     `json:"category"`
	Engine    string                     `json:"engine"`
	Price     json.RawMessage            `json:"price"`
	URL       string                     `json:"url"`
	ImageURL  string                     `json:"image_url"`
	Provider  string                     `json:"provider"`
	ScrapedAt *time.Time                 `json:"scraped_at"`
	Specs     map[string]json.RawMessage `json:"specs"`
}

func (r record) bike() (model.Bike, error) {
	b := model.Bike{
		ID:       r.ID,
		Make:     r.Make,
		Model:    r.Model,
		Package:  r.Package,
		Category: r.Category,
		Engine:   r.Engine,
		Price:    scalar(r.Price),
		URL:      r.URL,
		ImageURL: r.ImageURL,
		Provider: r.Provider,
	}
	if b.Make == "" {
		b.Make = r.Brand
	}
	if r.ScrapedAt != nil {
		b.ScrapedAt = *r.ScrapedAt
	}

	if year := scalar(r.Year); year != "" {
		y, err := strconv.Atoi(strings.TrimSuffix(year, ".0"))
		if err != nil {
			return model.Bike{}, fmt.Errorf("invalid year %q", year)
		}
		b.Year = y
	}

	if len(r.Specs) > 0 {
		b.Specs = make(map[string]string, len(r.Specs))
		for k, v := range r.Specs {
			if value := scalar(v); value != "" {
				b.Specs[k] = value
			}
		}
	}
	return b, nil
}

// scalar renders a JSON string, number or bool as text; null and composites become ""
func scalar(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	switch raw[0] {
	case '{', '[':
		return ""
	}
	return string(raw)
}

// WriteJSON writes bikes as an indented JSON array
func WriteJSON(w io.Writer, bikes []model.Bike) error {
	if bikes == nil {
		bikes = []model.Bike{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(bikes); err != nil {
		return fmt.Errorf("failed to encode bikes: %w", err)
	}
	return nil
}

// ReadJSON reads a JSON array of bikes or a single bike object
func ReadJSON(r io.Reader) ([]model.Bike, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read JSON: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	var records []record
	if data[0] == '{' {
		var single record
		if err := json.Unmarshal(data, &single); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
		records = []record{single}
	} else if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	bikes := make([]model.Bike, 0, len(records))
	for i, rec := range records {
		b, err := rec.bike()
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i+1, err)
		}
		bikes = append(bikes, b)
	}
	return bikes, nil
}

// WriteJSONL writes one JSON object per line
func WriteJSONL(w io.Writer, bikes []model.Bike) error {
	enc := json.NewEncoder(w)
	for i, b := range bikes {
		if err := enc.Encode(b); err != nil {
			return fmt.Errorf("failed to encode bike %d: %w", i+1, err)
		}
	}
	return nil
}

// ReadJSONL reads one JSON object per line; blank lines are skipped
func ReadJSONL(r io.Reader) ([]model.Bike, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var bikes []model.Bike
	for line := 1; scanner.Scan(); line++ {
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}

		var rec record
		if err := json.Unmarshal(text, &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		b, err := rec.bike()
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		bikes = append(bikes, b)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read JSON lines: %w", err)
	}
	return bikes, nil
}
