// Package notify reports confirmed bets to the tracking service and raises
// the user-visible notifications for delivery success and failure.
package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Send posts a plain-text user notification to an ntfy-style endpoint.
func Send(ctx context.Context, client *http.Client, endpoint, message string) error {
	c := client
	if c == nil {
		c = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(message))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("user notification failed: status=%d", resp.StatusCode)
	}
	return nil
}
