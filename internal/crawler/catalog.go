package crawler

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"sjsage522/bikecrawler/internal/model"
	"sjsage522/bikecrawler/internal/normalize"
	"sjsage522/bikecrawler/services/cache"
)

// CatalogCrawler walks a catalog site driven by a listing URL template and CSS selectors
type CatalogCrawler struct {
	BaseCrawler
	ListingURL   string
	MaxPages     int
	FetchDetails bool
	Selectors    Selectors

	now func() time.Time
}

// NewCatalogCrawler creates a new catalog crawler
func NewCatalogCrawler(config CrawlerConfig, cacheSvc cache.CacheService, fetcher Fetcher) *CatalogCrawler {
	return &CatalogCrawler{
		BaseCrawler:  newBaseCrawler(config, cacheSvc, fetcher),
		ListingURL:   config.ListingURL,
		MaxPages:     config.MaxPages,
		FetchDetails: config.FetchDetails,
		Selectors:    config.Selectors,
		now:          time.Now,
	}
}

// Close releases the fetcher when it holds resources (a browser)
func (c *CatalogCrawler) Close() error {
	if closer, ok := c.Fetcher.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// FetchBikes fetches every listing page of a unit. Pagination follows the next-page link
// until it is absent, already visited, or MaxPages is reached. A failing page fails the unit.
func (c *CatalogCrawler) FetchBikes(ctx context.Context, unit model.Unit) ([]model.Bike, error) {
	var bikes []model.Bike
	visited := make(map[string]bool)

	pageURL := ListingURL(c.ListingURL, unit, 1)
	for page := 1; pageURL != ""; page++ {
		if visited[pageURL] {
			break
		}
		visited[pageURL] = true

		doc, err := c.navigate(ctx, pageURL)
		if err != nil {
			return nil, fmt.Errorf("listing page %d of %s: %w", page, unit.Key(), err)
		}

		found := c.parseListing(doc, unit)
		c.getLogger().Debug().Str("unit", unit.Key()).Int("page", page).Int("bikes", len(found)).Msg("Parsed listing page")
		bikes = append(bikes, found...)

		if c.MaxPages > 0 && page >= c.MaxPages {
			break
		}
		pageURL = c.nextPage(doc)
	}

	if c.FetchDetails {
		if err := c.enrich(ctx, bikes); err != nil {
			return nil, err
		}
	}

	return bikes, nil
}

// FetchDetail fetches a bike page and reads its spec table
func (c *CatalogCrawler) FetchDetail(ctx context.Context, url string) (model.Bike, error) {
	doc, err := c.navigate(ctx, url)
	if err != nil {
		return model.Bike{}, err
	}
	return c.parseDetail(doc, url), nil
}

// enrich merges detail pages into listing records; a failing detail page keeps the listing record
func (c *CatalogCrawler) enrich(ctx context.Context, bikes []model.Bike) error {
	for i := range bikes {
		if bikes[i].URL == "" {
			continue
		}

		detail, err := c.FetchDetail(ctx, bikes[i].URL)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.getLogger().Warn().Err(err).Str("url", bikes[i].URL).Msg("Detail page failed, keeping listing record")
			continue
		}
		mergeDetail(&bikes[i], detail)
	}
	return nil
}

func mergeDetail(b *model.Bike, detail model.Bike) {
	if b.Specs == nil {
		b.Specs = make(map[string]string, len(detail.Specs))
	}
	for k, v := range detail.Specs {
		b.Specs[k] = v
	}
	if b.ImageURL == "" {
		b.ImageURL = detail.ImageURL
	}
	if b.Engine == "" {
		b.Engine = detail.Engine
	}
	if b.Price == "" {
		b.Price = detail.Price
	}
	if b.Category == "" {
		b.Category = detail.Category
	}
}

func (c *CatalogCrawler) nextPage(doc *goquery.Document) string {
	if c.Selectors.NextPage == "" {
		return ""
	}
	href, ok := doc.Find(c.Selectors.NextPage).First().Attr("href")
	if !ok {
		return ""
	}
	return c.ResolveURL(href)
}

// parseListing extracts bikes in document order
func (c *CatalogCrawler) parseListing(doc *goquery.Document, unit model.Unit) []model.Bike {
	var bikes []model.Bike
	doc.Find(c.Selectors.BikeList).Each(func(_ int, s *goquery.Selection) {
		if bike := c.processBike(s, unit); bike != nil {
			bikes = append(bikes, *bike)
		}
	})
	return bikes
}

// findOrSelf finds selector under s, or s itself when s matches it
func findOrSelf(s *goquery.Selection, selector string) *goquery.Selection {
	if selector == "" {
		return s.Slice(0, 0)
	}
	found := s.Find(selector)
	if found.Length() == 0 && s.Is(selector) {
		return s
	}
	return found.First()
}

func text(s *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.Join(strings.Fields(findOrSelf(s, selector).Text()), " ")
}

// processBike processes a single listing element
func (c *CatalogCrawler) processBike(s *goquery.Selection, unit model.Unit) *model.Bike {
	// Skip if the element has a class to filter out
	if c.Selectors.ClassFilter != "" && s.HasClass(c.Selectors.ClassFilter) {
		return nil
	}

	titleSel := findOrSelf(s, c.Selectors.Title)
	title, _ := titleSel.Attr("title")
	if strings.TrimSpace(title) == "" {
		title = titleSel.Text()
	}
	title = strings.Join(strings.Fields(title), " ")
	if title == "" {
		return nil
	}

	href, _ := findOrSelf(s, c.Selectors.Link).Attr("href")
	link := c.ResolveURL(href)
	if link == "" {
		return nil
	}

	price := text(s, c.Selectors.Price)
	if price == "" && c.PriceRegex != "" {
		title, price = c.ExtractPrice(title)
	}

	bike := &model.Bike{
		Package:   text(s, c.Selectors.Package),
		Category:  text(s, c.Selectors.Category),
		Engine:    text(s, c.Selectors.Engine),
		Price:     price,
		URL:       link,
		ImageURL:  c.imageURL(s),
		Provider:  c.Provider,
		ScrapedAt: c.now().UTC(),
	}

	if info, err := ParseBikeURL(link); err == nil {
		bike.ID = BikeID(info)
		bike.Year = info.Year
		bike.Make = info.Brand
		bike.Model = info.Model
		if bike.Package == "" {
			bike.Package = info.Package
		}
	}
	if bike.Year == 0 {
		bike.Year = unit.Year
	}
	if bike.Year == 0 {
		bike.Year, _ = normalize.Year(title)
	}
	if bike.Make == "" {
		bike.Make = displayName(unit.Brand)
	}
	if bike.Model == "" {
		bike.Model = modelFromTitle(title, bike.Year, bike.Make)
	}

	return bike
}

// imageURL reads src, then data-src, then the first srcset candidate
func (c *CatalogCrawler) imageURL(s *goquery.Selection) string {
	img := findOrSelf(s, c.Selectors.Image)
	if img.Length() == 0 {
		return ""
	}
	for _, attr := range []string{"src", "data-src"} {
		if v, ok := img.Attr(attr); ok && strings.TrimSpace(v) != "" && !strings.HasPrefix(v, "data:") {
			return c.ResolveURL(v)
		}
	}
	if srcset, ok := img.Attr("srcset"); ok {
		first := strings.TrimSpace(strings.Split(srcset, ",")[0])
		if fields := strings.Fields(first); len(fields) > 0 {
			return c.ResolveURL(fields[0])
		}
	}
	return ""
}

// modelFromTitle strips the model year from either end of a listing title, then a leading make
func modelFromTitle(title string, year int, brand string) string {
	words := strings.Fields(title)
	isYear := func(w string) bool {
		y, ok := normalize.Year(w)
		return ok && y == year && w == strconv.Itoa(y)
	}
	if len(words) > 1 && year > 0 && isYear(words[0]) {
		words = words[1:]
	}
	if len(words) > 1 && year > 0 && isYear(words[len(words)-1]) {
		words = words[:len(words)-1]
	}
	rest := strings.Join(words, " ")
	if brand != "" && len(rest) >= len(brand) && strings.EqualFold(rest[:len(brand)], brand) {
		rest = strings.TrimSpace(rest[len(brand):])
	}
	if rest == "" {
		return normalize.Name(title)
	}
	return normalize.Name(rest)
}

// parseDetail reads the spec table of a bike page
func (c *CatalogCrawler) parseDetail(doc *goquery.Document, url string) model.Bike {
	bike := model.Bike{
		URL:       url,
		Provider:  c.Provider,
		ScrapedAt: c.now().UTC(),
		Specs:     make(map[string]string),
	}

	if info, err := ParseBikeURL(url); err == nil {
		bike.ID = BikeID(info)
		bike.Year = info.Year
		bike.Make = info.Brand
		bike.Model = info.Model
		bike.Package = info.Package
	}
	if heading := doc.Find("h1").First().Text(); bike.Model == "" {
		if bike.Year == 0 {
			bike.Year, _ = normalize.Year(heading)
		}
		bike.Model = modelFromTitle(heading, bike.Year, bike.Make)
	}

	if c.Selectors.SpecRow != "" {
		doc.Find(c.Selectors.SpecRow).Each(func(_ int, row *goquery.Selection) {
			key := strings.TrimSuffix(text(row, c.Selectors.SpecKey), ":")
			value := text(row, c.Selectors.SpecValue)
			if key == "" || value == "" {
				return
			}
			if _, exists := bike.Specs[key]; !exists {
				bike.Specs[key] = value
			}
		})
	}

	if image, ok := doc.Find(`meta[property="og:image"]`).Attr("content"); ok {
		bike.ImageURL = c.ResolveURL(image)
	}
	bike.Engine = bike.Spec("Engine", "Engine type", "Motor")
	bike.Price = bike.Spec("Price", "MSRP", "Price as new (MSRP)")
	bike.Category = bike.Spec("Category", "Type")

	return bike
}
