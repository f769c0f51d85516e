package search

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
)

// ProbeSize performs a HEAD request against url and returns the advertised
// Content-Length. Returns 0 with a nil error when the server does not
// advertise a length; callers then fall back to ceiling checks during the
// actual transfer.
func (c *Client) ProbeSize(ctx context.Context, url string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, fmt.Errorf("creating probe request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("probe returned status %d", resp.StatusCode)
	}

	cl := resp.Header.Get("Content-Length")
	if cl == "" {
		return 0, nil
	}

	size, err := strconv.ParseInt(cl, 10, 64)
	if err != nil || size < 0 {
		return 0, fmt.Errorf("unparseable content length %q", cl)
	}
	return size, nil
}
