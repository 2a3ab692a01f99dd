package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

// EnsureTab checks that at least one open page matches urlFilter and
// navigates a tab to startURL when none does. No-op when startURL is empty.
func EnsureTab(ctx context.Context, cdpURL, urlFilter, startURL string) error {
	if startURL == "" {
		return nil
	}

	allocCtx, allocCancel := chromedp.NewRemoteAllocator(ctx, cdpURL)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	connectCtx, connectCancel := context.WithTimeout(browserCtx, 10*time.Second)
	defer connectCancel()
	if err := chromedp.Run(connectCtx); err != nil {
		return fmt.Errorf("connect to browser: %w", err)
	}

	targets, err := chromedp.Targets(browserCtx)
	if err != nil {
		return fmt.Errorf("list targets: %w", err)
	}
	for _, t := range targets {
		if t.Type == "page" && strings.Contains(t.URL, urlFilter) {
			slog.Debug("matching tab already open", "url", t.URL)
			return nil
		}
	}

	navCtx, navCancel := context.WithTimeout(browserCtx, 30*time.Second)
	defer navCancel()
	if err := chromedp.Run(navCtx, chromedp.Navigate(startURL)); err != nil {
		return fmt.Errorf("open %s: %w", startURL, err)
	}
	slog.Info("opened sportsbook tab", "url", startURL)
	return nil
}
