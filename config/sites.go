package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/titanous/json5"
)

// SiteSelectors holds the CSS selectors used to scrape a catalog site
type SiteSelectors struct {
	BikeList    string `json:"bike_list"`
	Title       string `json:"title"`
	Link        string `json:"link"`
	Price       string `json:"price"`
	Category    string `json:"category"`
	Image       string `json:"image"`
	Package     string `json:"package"`
	Engine      string `json:"engine"`
	SpecRow     string `json:"spec_row"`
	SpecKey     string `json:"spec_key"`
	SpecValue   string `json:"spec_value"`
	NextPage    string `json:"next_page"`
	ClassFilter string `json:"class_filter"`
	PriceRegex  string `json:"price_regex"`
}

// Site describes one catalog site and how to walk it
type Site struct {
	Name             string            `json:"name"`
	Provider         string            `json:"provider"`
	BaseURL          string            `json:"base_url"`
	ListingURL       string            `json:"listing_url"`
	CacheKey         string            `json:"cache_key"`
	BlockTimeSeconds int               `json:"block_time_seconds"`
	MaxPages         int               `json:"max_pages"`
	FetchDetails     bool              `json:"fetch_details"`
	UseBrowser       bool              `json:"use_browser"`
	Brands           []string          `json:"brands"`
	MakerIDs         map[string]string `json:"maker_ids"`
	Selectors        SiteSelectors     `json:"selectors"`
}

// MakerID returns the site identifier for a brand, falling back to the brand itself
func (s Site) MakerID(brand string) string {
	if id, ok := s.MakerIDs[strings.ToLower(brand)]; ok {
		return id
	}
	return strings.ToLower(brand)
}

// DefaultSites returns the built-in catalog definitions
func DefaultSites() []Site {
	return []Site{
		{
			Name:             "99spokes",
			Provider:         "99Spokes",
			BaseURL:          "https://99spokes.com",
			ListingURL:       "https://99spokes.com/en-US/bikes?year={year}&makerId={maker}&page={page}",
			CacheKey:         "99spokes_rate_limited",
			BlockTimeSeconds: 600,
			MaxPages:         20,
			Brands:           []string{"trek", "specialized", "giant", "cannondale", "santa-cruz", "canyon", "scott"},
			MakerIDs: map[string]string{
				"santa cruz": "santa-cruz",
			},
			Selectors: SiteSelectors{
				BikeList:  "div.bike-list a.bike-card, li.search-result",
				Title:     "h2.bike-name, .bike-card-title",
				Link:      "a.bike-link",
				Price:     "span.price, .bike-card-price",
				Category:  "span.category, .bike-card-category",
				Image:     "img",
				Package:   "span.build, .bike-card-build",
				SpecRow:   "table.specs tr",
				SpecKey:   "th",
				SpecValue: "td",
				NextPage:  "a[rel='next']",
			},
		},
		{
			Name:             "bikez",
			Provider:         "Bikez",
			BaseURL:          "https://bikez.com",
			ListingURL:       "https://bikez.com/brand/{maker}_motorcycles_{year}.php",
			CacheKey:         "bikez_rate_limited",
			BlockTimeSeconds: 600,
			MaxPages:         1,
			FetchDetails:     true,
			Brands:           []string{"honda", "yamaha", "kawasaki", "suzuki", "ducati", "ktm", "bmw", "triumph", "harley-davidson"},
			Selectors: SiteSelectors{
				BikeList:    "table.zebra tr",
				Title:       "td a",
				Link:        "td a",
				Category:    "td.category",
				Image:       "td img",
				ClassFilter: "header",
				SpecRow:     "table.Grid tr",
				SpecKey:     "td:nth-child(1)",
				SpecValue:   "td:nth-child(2)",
			},
		},
	}
}

// LoadSites returns the built-in sites with the entries of a JSON5 file applied over them.
// Keys present in a file entry win, including false and 0; absent keys keep the built-in
// value. maker_ids maps are merged key by key.
func LoadSites(path string) ([]Site, error) {
	sites := DefaultSites()
	if path == "" {
		return sites, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sites file: %w", err)
	}

	var entries []map[string]any
	if err := json5.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse sites file %s: %w", path, err)
	}

	for _, entry := range entries {
		name, _ := entry["name"].(string)
		if name == "" {
			return nil, fmt.Errorf("sites file %s: entry without name", path)
		}

		index := -1
		for i := range sites {
			if sites[i].Name == name {
				index = i
				break
			}
		}

		var site Site
		if index >= 0 {
			site = sites[index]
		}
		if err := applySiteEntry(&site, entry); err != nil {
			return nil, fmt.Errorf("sites file %s: site %s: %w", path, name, err)
		}
		if site.Selectors.PriceRegex != "" {
			if _, err := regexp.Compile(site.Selectors.PriceRegex); err != nil {
				return nil, fmt.Errorf("sites file %s: site %s: invalid price_regex: %w", path, name, err)
			}
		}

		if index < 0 {
			sites = append(sites, site)
			continue
		}
		sites[index] = site
	}

	return sites, nil
}

// applySiteEntry decodes a parsed file entry onto site. Decoding into an existing value only
// touches the keys the entry carries.
func applySiteEntry(site *Site, entry map[string]any) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, site)
}

// FindSite looks a site up by name
func FindSite(sites []Site, name string) (Site, error) {
	for _, site := range sites {
		if strings.EqualFold(site.Name, name) {
			return site, nil
		}
	}
	return Site{}, fmt.Errorf("unknown catalog site %q", name)
}
