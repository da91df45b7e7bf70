package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const userAgent = "imagekiln"

// httpClient wraps a standard http.Client with convenience helpers.
type httpClient struct {
	client *http.Client
}

// newHTTPClient creates a client with the given timeout in seconds.
func newHTTPClient(timeoutSecs int) *httpClient {
	if timeoutSecs <= 0 {
		timeoutSecs = 20
	}
	return &httpClient{
		client: &http.Client{
			Timeout: time.Duration(timeoutSecs) * time.Second,
		},
	}
}

// fetchJSON GETs a URL and decodes the response body into result.
// If authEnv names a non-empty environment variable, its value is sent
// as a Bearer token.
func (h *httpClient) fetchJSON(ctx context.Context, url string, result any, authEnv string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	applyAuth(req, authEnv)

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

// fetchText GETs a URL and returns the response body as a string.
func (h *httpClient) fetchText(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := h.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", url, err)
	}
	return string(data), nil
}

// applyAuth sets a Bearer token from the named environment variable.
func applyAuth(req *http.Request, authEnv string) {
	if authEnv == "" {
		return
	}
	if token := os.Getenv(authEnv); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}
