package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Bike is a flat catalog record as scraped or loaded from a dump
type Bike struct {
	ID        string            `json:"id,omitempty"`
	Year      int               `json:"year,omitempty"`
	Make      string            `json:"make"`
	Model     string            `json:"model"`
	Package   string            `json:"package,omitempty"`
	Category  string            `json:"category,omitempty"`
	Engine    string            `json:"engine,omitempty"`
	Price     string            `json:"price,omitempty"`
	URL       string            `json:"url,omitempty"`
	ImageURL  string            `json:"image_url,omitempty"`
	Provider  string            `json:"provider,omitempty"`
	ScrapedAt time.Time         `json:"scraped_at,omitempty"`
	Specs     map[string]string `json:"specs,omitempty"`
}

// Spec returns the first spec value whose label matches one of the given labels, case-insensitively
func (b Bike) Spec(labels ...string) string {
	for _, label := range labels {
		for key, value := range b.Specs {
			if strings.EqualFold(key, label) {
				return value
			}
		}
	}
	return ""
}

// Unit is one year/brand slice of a catalog, the granularity of the progress file
type Unit struct {
	Year    int    `json:"year"`
	Brand   string `json:"brand"`
	MakerID string `json:"maker_id,omitempty"`
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Key identifies the unit in the progress file
func (u Unit) Key() string {
	return fmt.Sprintf("%d:%s", u.Year, strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(u.Brand), "-"), "-"))
}

// Units builds the cross product of years and brands
func Units(years []int, brands []string, makerID func(string) string) []Unit {
	units := make([]Unit, 0, len(years)*len(brands))
	for _, year := range years {
		for _, brand := range brands {
			unit := Unit{Year: year, Brand: brand}
			if makerID != nil {
				unit.MakerID = makerID(brand)
			}
			units = append(units, unit)
		}
	}
	return units
}
