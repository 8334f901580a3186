package cmd

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// parseYears reads "2020-2024,2018" into a sorted, duplicate-free list of years
func parseYears(s string) ([]int, error) {
	seen := make(map[int]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		from, to, isRange := strings.Cut(part, "-")
		start, err := strconv.Atoi(strings.TrimSpace(from))
		if err != nil {
			return nil, fmt.Errorf("invalid year %q", part)
		}
		end := start
		if isRange {
			if end, err = strconv.Atoi(strings.TrimSpace(to)); err != nil {
				return nil, fmt.Errorf("invalid year range %q", part)
			}
		}
		if start > end {
			start, end = end, start
		}
		if start < 1885 || end > 2100 {
			return nil, fmt.Errorf("year range %q outside 1885..2100", part)
		}
		for y := start; y <= end; y++ {
			seen[y] = true
		}
	}

	if len(seen) == 0 {
		return nil, fmt.Errorf("no years given")
	}
	years := make([]int, 0, len(seen))
	for y := range seen {
		years = append(years, y)
	}
	sort.Ints(years)
	return years, nil
}

// splitList splits a comma separated flag value, dropping blanks
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
