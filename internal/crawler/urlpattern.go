package crawler

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"sjsage522/bikecrawler/internal/model"
	"sjsage522/bikecrawler/internal/normalize"
)

const (
	minModelYear = 1885
	maxModelYear = 2100
)

// ErrNoPattern is returned when a URL matches none of the known catalog layouts
var ErrNoPattern = errors.New("no catalog URL pattern matched")

var (
	localeSegment  = regexp.MustCompile(`^[a-z]{2}-[A-Za-z]{2}$`)
	yearSlugRe     = regexp.MustCompile(`^(\d{4})-(.+)$`)
	underscoreForm = regexp.MustCompile(`(?i)^([a-z0-9-]+?)_(.+)_(\d{4})(?:\.(?:html?|php))?$`)
	slugSeparators = strings.NewReplacer("-", " ", "_", " ", "+", " ")
)

// URLInfo is what a catalog URL tells about the bike it points to
type URLInfo struct {
	Year    int
	Brand   string
	Model   string
	Package string
	MakerID string
}

// ParseBikeURL extracts year, brand, model and package from a catalog URL.
// Recognised layouts:
//
//	/[xx-XX/]bikes/<brand>/<year>/<model>[/<package>]
//	/<brand>/<year>-<model>
//	/.../<brand>_<model>_<year>.html
//	?year=<year>&makerId=<maker>
func ParseBikeURL(raw string) (URLInfo, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return URLInfo{}, fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	if u.Host == "" && u.Path == "" && u.RawQuery == "" {
		return URLInfo{}, fmt.Errorf("invalid URL %q: empty", raw)
	}

	var segments []string
	for _, s := range strings.Split(u.Path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	if len(segments) > 0 && localeSegment.MatchString(segments[0]) {
		segments = segments[1:]
	}

	info, ok, err := parseSegments(segments)
	if err != nil {
		return URLInfo{}, fmt.Errorf("%s: %w", raw, err)
	}
	if !ok {
		info, ok, err = parseQuery(u.Query())
		if err != nil {
			return URLInfo{}, fmt.Errorf("%s: %w", raw, err)
		}
	}
	if !ok {
		return URLInfo{}, fmt.Errorf("%s: %w", raw, ErrNoPattern)
	}
	return info, nil
}

func parseSegments(segments []string) (URLInfo, bool, error) {
	// bikes/<brand>/<year>/<model>[/<package>]
	if len(segments) >= 4 && strings.EqualFold(segments[0], "bikes") {
		if year, err := strconv.Atoi(segments[2]); err == nil {
			if err := checkYear(year); err != nil {
				return URLInfo{}, false, err
			}
			info := URLInfo{
				Year:    year,
				Brand:   displayName(segments[1]),
				Model:   displayName(segments[3]),
				MakerID: strings.ToLower(segments[1]),
			}
			if len(segments) >= 5 {
				info.Package = displayName(segments[4])
			}
			return info, true, nil
		}
	}

	if len(segments) == 0 {
		return URLInfo{}, false, nil
	}
	last := segments[len(segments)-1]

	// <brand>_<model>_<year>.html
	if m := underscoreForm.FindStringSubmatch(last); m != nil {
		year, _ := strconv.Atoi(m[3])
		if err := checkYear(year); err != nil {
			return URLInfo{}, false, err
		}
		return URLInfo{
			Year:    year,
			Brand:   displayName(m[1]),
			Model:   displayName(m[2]),
			MakerID: strings.ToLower(m[1]),
		}, true, nil
	}

	// <brand>/<year>-<model>
	if len(segments) >= 2 {
		if m := yearSlugRe.FindStringSubmatch(last); m != nil {
			year, _ := strconv.Atoi(m[1])
			if err := checkYear(year); err != nil {
				return URLInfo{}, false, err
			}
			brand := segments[len(segments)-2]
			return URLInfo{
				Year:    year,
				Brand:   displayName(brand),
				Model:   displayName(m[2]),
				MakerID: strings.ToLower(brand),
			}, true, nil
		}
	}

	return URLInfo{}, false, nil
}

func parseQuery(q url.Values) (URLInfo, bool, error) {
	rawYear := q.Get("year")
	maker := q.Get("makerId")
	if maker == "" {
		maker = q.Get("maker")
	}
	if rawYear == "" || maker == "" {
		return URLInfo{}, false, nil
	}

	year, err := strconv.Atoi(rawYear)
	if err != nil {
		return URLInfo{}, false, fmt.Errorf("invalid year %q", rawYear)
	}
	if err := checkYear(year); err != nil {
		return URLInfo{}, false, err
	}
	return URLInfo{Year: year, Brand: displayName(maker), MakerID: maker}, true, nil
}

func checkYear(year int) error {
	if year < minModelYear || year > maxModelYear {
		return fmt.Errorf("year %d outside %d..%d", year, minModelYear, maxModelYear)
	}
	return nil
}

func displayName(slug string) string {
	if unescaped, err := url.PathUnescape(slug); err == nil {
		slug = unescaped
	}
	slug = strings.TrimSuffix(strings.TrimSuffix(slug, ".html"), ".php")
	return normalize.Name(slugSeparators.Replace(slug))
}

// BikeID derives a stable record id from URL information: brand-year-model[-package]
func BikeID(info URLInfo) string {
	if info.Brand == "" || info.Model == "" || info.Year == 0 {
		return ""
	}
	parts := []string{normalize.Slug(info.Brand), strconv.Itoa(info.Year), normalize.Slug(info.Model)}
	if info.Package != "" {
		parts = append(parts, normalize.Slug(info.Package))
	}
	return strings.Join(parts, "-")
}

// ListingURL fills the {year}, {maker} and {page} placeholders of a listing template
func ListingURL(template string, unit model.Unit, page int) string {
	maker := unit.MakerID
	if maker == "" {
		maker = normalize.Slug(unit.Brand)
	}
	return strings.NewReplacer(
		"{year}", strconv.Itoa(unit.Year),
		"{maker}", url.QueryEscape(maker),
		"{page}", strconv.Itoa(page),
	).Replace(template)
}
