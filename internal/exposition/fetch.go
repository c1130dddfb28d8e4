package exposition

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Fetch GETs an exposition endpoint and parses its gauges.
// Params: ctx for cancellation; url endpoint; timeout request timeout.
// Returns: gauge values or HTTP/parse error.
func Fetch(ctx context.Context, url string, timeout time.Duration) (map[string]float64, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("url is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", ContentType)

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		bodyText := strings.TrimSpace(string(body))
		if bodyText == "" {
			return nil, fmt.Errorf("GET %s: unexpected status %s", url, resp.Status)
		}
		return nil, fmt.Errorf("GET %s: unexpected status %s: %s", url, resp.Status, bodyText)
	}

	values, err := ParseGauges(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", url, err)
	}
	return values, nil
}
