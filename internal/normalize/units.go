package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Measure is a value with an optional engine speed, as in "95 hp @ 10,500 rpm"
type Measure struct {
	Value float64
	RPM   int
}

const number = `(\d+(?:[.,]\d+)*)`

var (
	displacementRe = regexp.MustCompile(`(?i)` + number + `\s*(ccm|cc|cm3|cm³|litres?|liters?|l)(?:[^a-z]|$)`)
	powerRe        = regexp.MustCompile(`(?i)` + number + `\s*(bhp|hp|ps|cv|kw)(?:[^a-z]|$)`)
	torqueRe       = regexp.MustCompile(`(?i)` + number + `\s*(nm|n·m|n-m|lb[-.\s]?ft|ft[-.\s]?lbs?|kgf[-.\s]?m|kg[-.\s]?m)(?:[^a-z]|$)`)
	weightRe       = regexp.MustCompile(`(?i)` + number + `\s*(kgs?|kilograms?|lbs?|pounds?|g)(?:[^a-z]|$)`)
	lengthRe       = regexp.MustCompile(`(?i)` + number + `\s*(mm|cm|inches|inch|in|"|″)(?:[^a-z]|$)`)
	volumeRe       = regexp.MustCompile(`(?i)` + number + `\s*(litres?|liters?|l|gallons?|gal)(?:[^a-z]|$)`)
	rpmRe          = regexp.MustCompile(`(?i)(\d[\d,.]*)\s*(?:rpm|r/min)`)
	yearRe         = regexp.MustCompile(`\b(18[89]\d|19\d{2}|20\d{2}|2100)\b`)
	priceRe        = regexp.MustCompile(`(?i)(US\$|CA\$|A\$|\$|€|£|USD|EUR|GBP|CAD|AUD)?\s*(\d{1,3}(?:[,.]\d{3})+|\d+)(?:[.,](\d{1,2}))?(?:\s*(€|£|USD|EUR|GBP|CAD|AUD))?`)
	thousandsRe    = regexp.MustCompile(`^\d{1,3}(,\d{3})+(\.\d+)?$`)
)

// parseNumber reads "1,200", "1.2", "3,5" and "1,299.50"
func parseNumber(s string) (float64, bool) {
	if thousandsRe.MatchString(s) {
		s = strings.ReplaceAll(s, ",", "")
	} else {
		s = strings.ReplaceAll(s, ",", ".")
	}
	if strings.Count(s, ".") > 1 {
		// "1.299.000" style thousands separators
		s = strings.ReplaceAll(s, ".", "")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// firstMatch returns the first match whose unit satisfies prefer, else the first match
func firstMatch(re *regexp.Regexp, s string, prefer func(unit string) bool) []string {
	matches := re.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return nil
	}
	for _, m := range matches {
		if prefer(strings.ToLower(m[2])) {
			return m
		}
	}
	return matches[0]
}

func rpm(s string) int {
	m := rpmRe.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	v, ok := parseNumber(m[1])
	if !ok {
		return 0
	}
	return int(v)
}

// Displacement extracts an engine displacement in cubic centimetres
func Displacement(s string) (float64, bool) {
	m := firstMatch(displacementRe, s, func(unit string) bool { return strings.HasPrefix(unit, "c") })
	if m == nil {
		return 0, false
	}
	v, ok := parseNumber(m[1])
	if !ok {
		return 0, false
	}
	if unit := strings.ToLower(m[2]); strings.HasPrefix(unit, "l") {
		v *= 1000
	}
	return round(v, 1), v > 0
}

// Power extracts engine power in horsepower; kW and PS values are converted
func Power(s string) (Measure, bool) {
	m := firstMatch(powerRe, s, func(unit string) bool { return strings.HasSuffix(unit, "hp") })
	if m == nil {
		return Measure{}, false
	}
	v, ok := parseNumber(m[1])
	if !ok {
		return Measure{}, false
	}
	switch strings.ToLower(m[2]) {
	case "kw":
		v *= 1.34102
	case "ps", "cv":
		v *= 0.98632
	}
	return Measure{Value: round(v, 1), RPM: rpm(s)}, v > 0
}

// Torque extracts torque in newton metres; lb-ft and kgf-m values are converted
func Torque(s string) (Measure, bool) {
	m := firstMatch(torqueRe, s, func(unit string) bool { return strings.HasPrefix(unit, "n") })
	if m == nil {
		return Measure{}, false
	}
	v, ok := parseNumber(m[1])
	if !ok {
		return Measure{}, false
	}
	unit := strings.ToLower(m[2])
	switch {
	case strings.HasPrefix(unit, "lb"), strings.HasPrefix(unit, "ft"):
		v *= 1.35582
	case strings.HasPrefix(unit, "kg"):
		v *= 9.80665
	}
	return Measure{Value: round(v, 1), RPM: rpm(s)}, v > 0
}

// Weight extracts a mass in kilograms; pounds and grams are converted
func Weight(s string) (float64, bool) {
	m := firstMatch(weightRe, s, func(unit string) bool { return strings.HasPrefix(unit, "k") })
	if m == nil {
		return 0, false
	}
	v, ok := parseNumber(m[1])
	if !ok {
		return 0, false
	}
	unit := strings.ToLower(m[2])
	switch {
	case strings.HasPrefix(unit, "lb"), strings.HasPrefix(unit, "pound"):
		v *= 0.45359237
	case unit == "g":
		v /= 1000
	}
	return round(v, 2), v > 0
}

// Length extracts a length in millimetres; centimetres and inches are converted
func Length(s string) (float64, bool) {
	m := firstMatch(lengthRe, s, func(unit string) bool { return unit == "mm" })
	if m == nil {
		return 0, false
	}
	v, ok := parseNumber(m[1])
	if !ok {
		return 0, false
	}
	switch strings.ToLower(m[2]) {
	case "cm":
		v *= 10
	case "in", "inch", "inches", `"`, "″":
		v *= 25.4
	}
	return round(v, 1), v > 0
}

// Volume extracts a volume in litres; US gallons are converted
func Volume(s string) (float64, bool) {
	m := firstMatch(volumeRe, s, func(unit string) bool { return strings.HasPrefix(unit, "l") })
	if m == nil {
		return 0, false
	}
	v, ok := parseNumber(m[1])
	if !ok {
		return 0, false
	}
	if strings.HasPrefix(strings.ToLower(m[2]), "gal") {
		v *= 3.78541
	}
	return round(v, 2), v > 0
}

var currencyCodes = map[string]string{
	"us$": "USD", "$": "USD", "usd": "USD",
	"ca$": "CAD", "cad": "CAD",
	"a$": "AUD", "aud": "AUD",
	"€": "EUR", "eur": "EUR",
	"£": "GBP", "gbp": "GBP",
}

// Price extracts an amount and an ISO currency code ("" when the text names none).
// Both "$1,299.99" and "1.299,00 €" read as 1299. Amounts with a currency win over
// bare numbers, and bare numbers that look like model years are ignored.
func Price(s string) (float64, string, bool) {
	var bare []float64
	for _, m := range priceRe.FindAllStringSubmatch(s, -1) {
		whole := strings.NewReplacer(",", "", ".", "").Replace(m[2])
		v, err := strconv.ParseFloat(whole, 64)
		if err != nil {
			continue
		}
		if m[3] != "" {
			cents, _ := strconv.ParseFloat(m[3], 64)
			if len(m[3]) == 1 {
				cents *= 10
			}
			v += cents / 100
		}
		if v <= 0 {
			continue
		}

		symbol := m[1]
		if symbol == "" {
			symbol = m[4]
		}
		if symbol != "" {
			return round(v, 2), currencyCodes[strings.ToLower(symbol)], true
		}
		if m[3] == "" && yearRe.MatchString(m[2]) {
			continue
		}
		bare = append(bare, v)
	}
	if len(bare) > 0 {
		return round(bare[0], 2), "", true
	}
	return 0, "", false
}

// Year extracts the first plausible model year (1885..2100)
func Year(s string) (int, bool) {
	m := yearRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	y, err := strconv.Atoi(m[1])
	if err != nil || y < 1885 {
		return 0, false
	}
	return y, true
}
