package arenaclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/park285/cheese-arena/internal/combat"
	"github.com/park285/cheese-arena/internal/match"
	"github.com/valyala/fasthttp"
)

// HeaderProvider allows injecting per-request headers
type HeaderProvider func() map[string]string

// APIError is a non-2xx answer from the match server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("arena api error: status=%d: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Status == fasthttp.StatusNotFound
}

type Client struct {
	baseURL string
	wsURL   string
	http    *fasthttp.Client
	dial    fasthttp.DialFunc
	headers HeaderProvider

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithHeaderProvider(h HeaderProvider) Option {
	return func(c *Client) { c.headers = h }
}

// WithRetry bounds attempts for idempotent (GET) calls. Mutations are never retried.
func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

// WithDial replaces the TCP dialer, e.g. with an in-memory listener in tests.
func WithDial(d fasthttp.DialFunc) Option {
	return func(c *Client) { c.dial = d }
}

// WithWebSocketURL sets the base of the WebSocket listener, like ws://host:8081.
func WithWebSocketURL(u string) Option {
	return func(c *Client) { c.wsURL = strings.TrimRight(u, "/") }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.http = &fasthttp.Client{
		ReadTimeout:     c.defaultTimeout,
		WriteTimeout:    c.defaultTimeout,
		MaxConnsPerHost: 64,
		Dial:            c.dial,
	}
	return c
}

type seat struct {
	MatchID  string         `json:"matchId"`
	PlayerID match.PlayerID `json:"playerId"`
}

// Create opens a match hosted by name and returns its id; the caller is p1.
func (c *Client) Create(ctx context.Context, name string) (string, error) {
	var out seat
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/api/match/create", map[string]string{"playerName": name}, &out, false); err != nil {
		return "", err
	}
	return out.MatchID, nil
}

// Join takes the second seat in matchID.
func (c *Client) Join(ctx context.Context, matchID, name string) (string, match.PlayerID, error) {
	in := map[string]string{"matchId": matchID, "playerName": name}
	var out seat
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/api/match/join", in, &out, false); err != nil {
		return "", "", err
	}
	return out.MatchID, out.PlayerID, nil
}

func (c *Client) Act(ctx context.Context, matchID string, player match.PlayerID, action combat.ActionType) (match.State, error) {
	in := map[string]string{"playerId": string(player), "type": string(action)}
	var out struct {
		State match.State `json:"state"`
	}
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/api/match/"+url.PathEscape(matchID)+"/action", in, &out, false); err != nil {
		return match.State{}, err
	}
	return out.State, nil
}

func (c *Client) Get(ctx context.Context, matchID string) (match.State, error) {
	var st match.State
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/api/match/"+url.PathEscape(matchID), nil, &st, true); err != nil {
		return match.State{}, err
	}
	return st, nil
}

func (c *Client) setHeaders(req *fasthttp.Request) {
	if c.headers == nil {
		return
	}
	for k, v := range c.headers() {
		if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
			req.Header.Set(k, v)
		}
	}
}

func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any, retry bool) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	req.Header.SetContentType("application/json")
	c.setHeaders(req)

	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		req.SetBody(payload)
	}

	attempts := 1
	if retry && c.retryMax > 1 {
		attempts = c.retryMax
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx))
		if err == nil {
			status := resp.StatusCode()
			if status >= 200 && status < 300 {
				if out != nil {
					if err := json.Unmarshal(resp.Body(), out); err != nil {
						return fmt.Errorf("decode response: %w", err)
					}
				}
				return nil
			}
			err = decodeAPIError(status, resp.Body())
			if !shouldRetryStatus(status) {
				return err
			}
		} else {
			err = fmt.Errorf("request failed: %w", err)
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
			return lastErr
		}
	}
	return lastErr
}

func decodeAPIError(status int, body []byte) error {
	var eb struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &eb) == nil && eb.Error != "" {
		msg = eb.Error
	}
	return &APIError{Status: status, Message: truncate(msg, 512)}
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond // 100ms, 200ms ...
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
