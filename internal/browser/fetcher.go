// Package browser fetches pages through headless Chrome for upstreams
// that refuse plain HTTP clients.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/chromedp"
)

const fetchTimeout = 60 * time.Second

// Fetcher renders a page in headless Chrome and returns its HTML.
// It implements the tool package's PageFetcher.
type Fetcher struct {
	userAgent string
	logger    *slog.Logger
}

type FetcherConfig struct {
	UserAgent string
	Logger    *slog.Logger
}

func NewFetcher(cfg FetcherConfig) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
	}
	return &Fetcher{
		userAgent: cfg.UserAgent,
		logger:    cfg.Logger,
	}
}

// Fetch navigates to pageURL and returns the rendered document. A fresh
// browser context is allocated per call; tool batches are small enough
// that keeping Chrome warm isn't worth the lifecycle complexity.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Headless,
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("exclude-switches", "enable-automation"),
		chromedp.UserAgent(f.userAgent),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	taskCtx, timeoutCancel := context.WithTimeout(taskCtx, fetchTimeout)
	defer timeoutCancel()

	f.logger.Debug("fetching page via headless browser", "url", pageURL)

	var html string
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body"),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", fmt.Errorf("browser fetch %s: %w", pageURL, err)
	}
	return html, nil
}
