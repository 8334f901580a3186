package helpers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveURL(t *testing.T) {
	testCases := []struct {
		base     string
		href     string
		expected string
	}{
		{"https://99spokes.com", "/bikes/trek/2023/marlin-7", "https://99spokes.com/bikes/trek/2023/marlin-7"},
		{"https://99spokes.com/en-US/bikes?year=2023", "page2", "https://99spokes.com/en-US/page2"},
		{"https://99spokes.com", "https://cdn.99spokes.com/img.jpg", "https://cdn.99spokes.com/img.jpg"},
		{"https://bikez.com", "//img.bikez.com/a.jpg", "https://img.bikez.com/a.jpg"},
		{"", "/relative", "/relative"},
		{"https://bikez.com", "  ", ""},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, ResolveURL(tc.base, tc.href), tc.href)
	}
}
