// Package maps talks to the Google Places API (New) when operators register
// stations. It is never on the search path.
package maps

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/evcharge-backend/pkg/errors"
)

const (
	defaultBaseURL  = "https://places.googleapis.com/v1"
	defaultTimeout  = 10 * time.Second
	errorBodyLimit  = 1024
	headerAPIKey    = "X-Goog-Api-Key"
	headerFieldMask = "X-Goog-FieldMask"
	mimeJSON        = "application/json"
)

var errAPIKeyRequired = errors.New("google maps api key is required")

type Client struct {
	http     *http.Client
	baseURL  string
	apiKey   string
	region   string
	language string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u = strings.TrimSpace(u); u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithLocale biases suggestions toward region (e.g. "IN") and language.
func WithLocale(region, language string) Option {
	return func(c *Client) {
		c.region = strings.ToUpper(strings.TrimSpace(region))
		c.language = strings.TrimSpace(language)
	}
}

func NewClient(apiKey string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	c := &Client{
		http:    &http.Client{Timeout: defaultTimeout},
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// call sends one Places request and decodes a 200 body into out. Provider
// failures are mapped onto the service error codes.
func (c *Client) call(ctx context.Context, method, path, fieldMask string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode places request")
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+strings.TrimLeft(path, "/"), body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build places request")
	}
	if in != nil {
		req.Header.Set("Content-Type", mimeJSON)
	}
	req.Header.Set(headerAPIKey, c.apiKey)
	req.Header.Set(headerFieldMask, fieldMask)

	resp, err := c.http.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeServiceUnavailable, err, "places request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		msg := strings.TrimSpace(string(snippet))
		switch resp.StatusCode {
		case http.StatusNotFound:
			return pkgerrors.New(pkgerrors.CodeNotFound, "place not found")
		case http.StatusBadRequest:
			return pkgerrors.New(pkgerrors.CodeValidation, "places request rejected").
				WithDetails(map[string]any{"provider_message": msg})
		default:
			return pkgerrors.Wrap(pkgerrors.CodeServiceUnavailable, fmt.Errorf("status %d: %s", resp.StatusCode, msg), "places request failed")
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeServiceUnavailable, err, "decode places response")
	}
	return nil
}
