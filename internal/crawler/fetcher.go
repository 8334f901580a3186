package crawler

import (
	"context"
	"io"

	"sjsage522/bikecrawler/helpers"
)

// HTTPFetcher fetches pages with plain HTTP requests and rotating browser headers
type HTTPFetcher struct{}

// Fetch returns the UTF-8 body of url
func (HTTPFetcher) Fetch(ctx context.Context, url string) (io.Reader, error) {
	return helpers.FetchWithRandomHeaders(ctx, url)
}
