package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"sjsage522/bikecrawler/helpers"
	"sjsage522/bikecrawler/logger"
	apperrors "sjsage522/bikecrawler/pkg/errors"
)

// BrowserFetcher renders pages in a Chromium instance driven by Playwright.
// The browser is launched on first use and shared by all fetches.
type BrowserFetcher struct {
	Headless bool
	Timeout  time.Duration

	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
}

// NewBrowserFetcher creates a browser fetcher
func NewBrowserFetcher(headless bool, timeout time.Duration) *BrowserFetcher {
	return &BrowserFetcher{Headless: headless, Timeout: timeout}
}

func (f *BrowserFetcher) ensureBrowser() (playwright.Browser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.browser != nil {
		return f.browser, nil
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, apperrors.NewConfiguration("could not start playwright", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(f.Headless),
	})
	if err != nil {
		pw.Stop()
		return nil, apperrors.NewConfiguration("could not launch browser", err)
	}

	logger.Info("Launched Chromium (headless=%t)", f.Headless)
	f.pw = pw
	f.browser = browser
	return browser, nil
}

// Fetch navigates a fresh page to url, waits for the network to go idle and returns the rendered HTML
func (f *BrowserFetcher) Fetch(ctx context.Context, rawURL string) (io.Reader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	host := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Host
	}

	browser, err := f.ensureBrowser()
	if err != nil {
		return nil, err
	}

	page, err := browser.NewPage(playwright.BrowserNewPageOptions{
		UserAgent: playwright.String(helpers.RandomUserAgent()),
	})
	if err != nil {
		return nil, apperrors.NewNetwork(host, "could not create page", err)
	}
	defer page.Close()

	options := playwright.PageGotoOptions{WaitUntil: playwright.WaitUntilStateNetworkidle}
	if f.Timeout > 0 {
		options.Timeout = playwright.Float(float64(f.Timeout.Milliseconds()))
	}

	resp, err := page.Goto(rawURL, options)
	if err != nil {
		return nil, apperrors.NewNetwork(host, fmt.Sprintf("could not navigate to %s", rawURL), err)
	}

	if resp != nil {
		status := resp.Status()
		switch {
		case status == http.StatusTooManyRequests || status == 430:
			return nil, apperrors.NewRateLimit(host, 0)
		case status >= 500:
			return nil, apperrors.NewNetwork(host, fmt.Sprintf("fetch %s unexpected status code: %d", rawURL, status), nil)
		}
	}

	content, err := page.Content()
	if err != nil {
		return nil, apperrors.NewParsing(host, "could not read page content", err)
	}
	return strings.NewReader(content), nil
}

// Close shuts the browser and the Playwright driver down
func (f *BrowserFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.browser == nil {
		return nil
	}

	var errs []string
	if err := f.browser.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := f.pw.Stop(); err != nil {
		errs = append(errs, err.Error())
	}
	f.browser, f.pw = nil, nil

	if len(errs) > 0 {
		return fmt.Errorf("failed to close browser: %s", strings.Join(errs, "; "))
	}
	return nil
}
