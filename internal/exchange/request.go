package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rickgao/barsync/internal/failure"
)

// maxErrorBody caps how much of an error response is kept in the message.
const maxErrorBody = 256

// doRequest performs a GET request and returns the response body.
func (c *Client) doRequest(ctx context.Context, op, path string, query url.Values) ([]byte, error) {
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, &failure.TransportError{Op: op, Err: fmt.Errorf("create request: %w", err)}
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &failure.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &failure.TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode >= 400 {
		msg := strings.TrimSpace(string(body))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &failure.TransportError{Op: op, StatusCode: resp.StatusCode, Message: msg}
	}

	c.logger.Debug("exchange request", "path", path, "status", resp.StatusCode, "bytes", len(body))

	return body, nil
}

// get performs a GET request and decodes the JSON body into result.
func (c *Client) get(ctx context.Context, op, path string, query url.Values, result any) error {
	body, err := c.doRequest(ctx, op, path, query)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, result); err != nil {
		return &failure.DecodeError{Op: op, Err: fmt.Errorf("unmarshal response: %w", err)}
	}

	return nil
}
