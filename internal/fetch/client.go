// Package fetch provides HTTP clients for the off-chain venue, pricing and portfolio APIs.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
)

// NewRetryClient creates an HTTP client with retry capabilities.
// Every off-chain call in the service goes through one of these.
func NewRetryClient() *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = 3
	c.RetryWaitMin = 500 * time.Millisecond
	c.RetryWaitMax = 3 * time.Second
	c.Logger = nil
	return c
}

// StandardClient converts a retryablehttp.Client to a standard http.Client
func StandardClient(retryClient *retryablehttp.Client) *http.Client {
	return retryClient.StandardClient()
}

// DefaultHTTPClient is a retrying *http.Client
func DefaultHTTPClient() *http.Client {
	return StandardClient(NewRetryClient())
}

// StatusError is returned when an API answers with a non-2xx status
type StatusError struct {
	URL    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.URL, e.Status, e.Body)
}

// GetJSON performs a GET request and decodes the JSON response into out
func GetJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	return doJSON(client, req, headers, out)
}

// PostJSON encodes body as JSON, posts it, and decodes the response into out when out is non-nil
func PostJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body, out interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("error encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return doJSON(client, req, headers, out)
}

func doJSON(client *http.Client, req *http.Request, headers map[string]string, out interface{}) error {
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Accept", "application/json")

	logrus.Debugf("Requesting %s %s", req.Method, req.URL.Redacted())
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("error requesting %s: %w", req.URL.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &StatusError{URL: req.URL.Redacted(), Status: resp.StatusCode, Body: string(body)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("error decoding response: %w", err)
	}
	return nil
}
