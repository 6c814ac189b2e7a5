// SPDX-License-Identifier: AGPL-3.0-only
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/fluffyriot/foodies/internal/credstore"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const (
	APIVersion     = "v1"
	DefaultBaseURL = "https://phplaravel-574671-2962113.cloudwaysapps.com/api/" + APIVersion
)

// Doer sends one HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Client struct {
	baseURL  string
	doer     Doer
	store    credstore.Reader
	tokenKey string
	metrics  *Metrics
	now      func() time.Time
}

type Option func(*Client)

// WithDoer replaces the default *http.Client transport.
func WithDoer(d Doer) Option {
	return func(c *Client) {
		c.doer = d
	}
}

func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

func WithTokenKey(key string) Option {
	return func(c *Client) {
		c.tokenKey = key
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient returns a gateway rooted at baseURL. The store is read at every
// authenticated call, so a logout or refresh elsewhere is seen by the next
// request.
func NewClient(baseURL string, timeout time.Duration, store credstore.Reader, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		doer: &http.Client{
			Timeout: timeout,
		},
		store:    store,
		tokenKey: credstore.AccessTokenKey,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Get(ctx context.Context, path string, query url.Values, requiresAuth bool, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, "", requiresAuth, out)
}

// PostJSON sends body encoded as JSON. A nil body sends an empty request body.
func (c *Client) PostJSON(ctx context.Context, path string, body any, requiresAuth bool, out any) error {
	if body == nil {
		return c.do(ctx, http.MethodPost, path, nil, nil, "", requiresAuth, out)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return &Error{Kind: KindUnknown, Op: http.MethodPost + " " + path, Err: fmt.Errorf("marshal body: %w", err)}
	}

	return c.do(ctx, http.MethodPost, path, nil, payload, "application/json", requiresAuth, out)
}

// PostMultipart sends fields as text parts and files as binary parts.
func (c *Client) PostMultipart(ctx context.Context, path string, fields map[string]string, files []FilePart, requiresAuth bool, out any) error {
	body, contentType, err := encodeMultipart(fields, files, c.now())
	if err != nil {
		return &Error{Kind: KindUnknown, Op: http.MethodPost + " " + path, Err: err}
	}

	return c.do(ctx, http.MethodPost, path, nil, body.Bytes(), contentType, requiresAuth, out)
}

func (c *Client) Delete(ctx context.Context, path string, requiresAuth bool, out any) error {
	return c.do(ctx, http.MethodDelete, path, nil, nil, "", requiresAuth, out)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte, contentType string, requiresAuth bool, out any) (err error) {
	op := method + " " + path
	start := time.Now()
	defer func() {
		c.metrics.observe(method, err, time.Since(start))
	}()

	endpoint, err := c.resolve(path, query)
	if err != nil {
		return &Error{Kind: KindInvalidURL, Op: op, Err: err}
	}

	var token *oauth2.Token
	if requiresAuth {
		token, err = c.bearer()
		if err != nil {
			var gwErr *Error
			if errors.As(err, &gwErr) {
				gwErr.Op = op
			}
			return err
		}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return &Error{Kind: KindInvalidURL, Op: op, Err: err}
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", requestID)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != nil {
		token.SetAuthHeader(req)
	}

	resp, err := c.doer.Do(req)
	if err != nil {
		log.Printf("Gateway: %s failed (request %s): %v", op, requestID, err)
		return &Error{Kind: KindUnknown, Op: op, Err: err}
	}
	defer func() {
		if resp.Body != nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
	}()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return &Error{Kind: KindUnauthorized, StatusCode: resp.StatusCode, Op: op}
	case resp.StatusCode == http.StatusNoContent:
		return &Error{Kind: KindNoContent, StatusCode: resp.StatusCode, Op: op}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		snippet := readSnippet(resp.Body)
		log.Printf("Gateway: %s returned %d (request %s). Body: %s", op, resp.StatusCode, requestID, snippet)
		return &Error{Kind: KindBadStatus, StatusCode: resp.StatusCode, Op: op}
	}

	if resp.Body == nil {
		return &Error{Kind: KindDecoding, StatusCode: resp.StatusCode, Op: op, Err: errors.New("empty response body")}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Kind: KindUnknown, StatusCode: resp.StatusCode, Op: op, Err: fmt.Errorf("read response body: %w", err)}
	}

	if out == nil {
		return nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Kind: KindDecoding, StatusCode: resp.StatusCode, Op: op, Err: err}
	}

	return nil
}

func (c *Client) resolve(path string, query url.Values) (string, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return "", err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("not an absolute http url: %q", c.baseURL+path)
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String(), nil
}

// bearer reads the access token fresh from the store.
func (c *Client) bearer() (*oauth2.Token, error) {
	if c.store == nil {
		return nil, &Error{Kind: KindUnauthorized, Err: errors.New("no credential store")}
	}

	accessToken, err := c.store.Get(c.tokenKey)
	if errors.Is(err, credstore.ErrNotFound) || (err == nil && accessToken == "") {
		return nil, &Error{Kind: KindUnauthorized, Err: errors.New("no access token")}
	}
	if err != nil {
		return nil, &Error{Kind: KindUnknown, Err: fmt.Errorf("read access token: %w", err)}
	}

	return &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}, nil
}

func readSnippet(r io.Reader) string {
	if r == nil {
		return ""
	}
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	return string(b)
}
