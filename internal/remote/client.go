package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ClientOptions configures a Client.
type ClientOptions struct {
	// BaseURL is the backend root, e.g. https://xyz.example.co.
	BaseURL     string
	APIKey      string
	AccessToken string
	// Timeout bounds every request. Zero means 30s.
	Timeout time.Duration
	// HTTPClient overrides the transport (tests).
	HTTPClient *http.Client
}

// Client talks to a PostgREST-style backend over HTTP.
type Client struct {
	base   *url.URL
	apiKey string
	token  string
	http   *http.Client
	logger *zap.Logger
}

var _ Backend = (*Client)(nil)

// NewClient validates opts and returns a Client.
func NewClient(opts ClientOptions, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.BaseURL == "" {
		return nil, errors.New("remote: base url is required")
	}
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("remote: parse base url: %w", err)
	}
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		base:   base,
		apiKey: opts.APIKey,
		token:  opts.AccessToken,
		http:   hc,
		logger: logger,
	}, nil
}

// Ping checks that the backend answers at all. Any response below 500 counts
// as reachable, authentication problems included.
func (c *Client) Ping(ctx context.Context) error {
	_, _, err := c.do(ctx, "ping", http.MethodHead, "", nil, nil, "")
	var se *StatusError
	if errors.As(err, &se) {
		return nil
	}
	return err
}

func (c *Client) Select(ctx context.Context, resource string, q Query) ([]json.RawMessage, int, error) {
	op := "select " + resource
	body, hdr, err := c.do(ctx, op, http.MethodGet, resource, q.Values(), nil, "count=exact")
	if err != nil {
		return nil, 0, err
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, 0, &NetworkError{Op: op, Err: fmt.Errorf("decode body: %w", err)}
	}
	count, ok := parseContentRange(hdr.Get("Content-Range"))
	if !ok {
		count = len(rows)
	}
	return rows, count, nil
}

func (c *Client) Get(ctx context.Context, resource, id string) (json.RawMessage, error) {
	rows, _, err := c.Select(ctx, resource, Query{Limit: 1}.Where("id", OpEq, id))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (c *Client) Insert(ctx context.Context, resource string, row any) (json.RawMessage, error) {
	op := "insert " + resource
	body, _, err := c.do(ctx, op, http.MethodPost, resource, nil, row, "return=representation")
	if err != nil {
		return nil, err
	}
	return single(op, body)
}

func (c *Client) Update(ctx context.Context, resource, id string, patch any) (json.RawMessage, error) {
	op := "update " + resource
	v := url.Values{}
	v.Set("id", "eq."+id)
	body, _, err := c.do(ctx, op, http.MethodPatch, resource, v, patch, "return=representation")
	if err != nil {
		return nil, err
	}
	return single(op, body)
}

func (c *Client) Delete(ctx context.Context, resource string, q Query) error {
	if len(q.Filters) == 0 {
		return ErrUnfilteredDelete
	}
	v := url.Values{}
	for _, f := range q.Filters {
		v.Add(f.Field, encodeFilter(f))
	}
	_, _, err := c.do(ctx, "delete "+resource, http.MethodDelete, resource, v, nil, "")
	return err
}

func (c *Client) do(ctx context.Context, op, method, resource string, query url.Values, in any, prefer string) ([]byte, http.Header, error) {
	u := *c.base
	u.Path += "/rest/v1/" + resource
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: marshal body: %w", op, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	reqID := uuid.NewString()
	req.Header.Set("X-Request-Id", reqID)
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("backend request failed", zap.String("op", op), zap.String("request_id", reqID), zap.Error(err))
		return nil, nil, &NetworkError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, &NetworkError{Op: op, Err: fmt.Errorf("read body: %w", err)}
	}
	c.logger.Debug("backend request",
		zap.String("op", op),
		zap.String("request_id", reqID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
	)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return data, resp.Header, nil
	case resp.StatusCode >= 500, resp.StatusCode == http.StatusRequestTimeout, resp.StatusCode == http.StatusTooManyRequests:
		return nil, nil, &NetworkError{Op: op, Status: resp.StatusCode, Err: errors.New(errorMessage(data))}
	default:
		return nil, nil, &StatusError{Op: op, Status: resp.StatusCode, Message: errorMessage(data)}
	}
}

func single(op string, body []byte) (json.RawMessage, error) {
	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, &NetworkError{Op: op, Err: fmt.Errorf("decode body: %w", err)}
	}
	if len(rows) == 0 {
		return nil, &StatusError{Op: op, Status: http.StatusNotFound, Message: "no rows affected"}
	}
	return rows[0], nil
}

// errorMessage extracts the "message" field of a PostgREST error body.
func errorMessage(body []byte) string {
	var e struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &e) == nil && e.Message != "" {
		return e.Message
	}
	s := strings.TrimSpace(string(body))
	if s == "" {
		return "empty response"
	}
	return s
}

// parseContentRange reads the total from "0-24/3573" or "*/0".
func parseContentRange(h string) (int, bool) {
	i := strings.LastIndexByte(h, '/')
	if i < 0 || h[i+1:] == "*" {
		return 0, false
	}
	n, err := strconv.Atoi(h[i+1:])
	if err != nil {
		return 0, false
	}
	return n, true
}
