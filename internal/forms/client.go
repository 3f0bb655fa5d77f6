// Package forms relays contact and newsletter submissions to a hosted form
// service.
package forms

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"slices"
	"strings"
	"time"
)

// DefaultEndpoint is the Web3Forms submission URL.
const DefaultEndpoint = "https://api.web3forms.com/submit"

// ErrMissingAccessKey is returned by Submit when no access key is configured.
var ErrMissingAccessKey = errors.New("form access key not configured")

// reservedField is set by the client and cannot be supplied by callers.
const reservedField = "access_key"

// Client posts form submissions. The zero value is not usable; call New.
type Client struct {
	endpoint   string
	accessKey  string
	httpClient *http.Client
}

// New creates a Client. An empty endpoint means DefaultEndpoint.
func New(endpoint, accessKey string) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		endpoint:  endpoint,
		accessKey: accessKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Configured reports whether an access key is set.
func (c *Client) Configured() bool {
	return c.accessKey != ""
}

// Submit sends fields as a multipart form. Only a 2xx response counts as
// success; failures are not retried.
func (c *Client) Submit(ctx context.Context, fields map[string]string) error {
	if c.accessKey == "" {
		return ErrMissingAccessKey
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k != reservedField {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	for _, k := range keys {
		if err := mw.WriteField(k, fields[k]); err != nil {
			return fmt.Errorf("writing field %q: %w", k, err)
		}
	}
	if err := mw.WriteField(reservedField, c.accessKey); err != nil {
		return fmt.Errorf("writing access key: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("closing form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("submitting form: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("form service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
