package arenaclient

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/park285/cheese-arena/internal/match"
	"github.com/valyala/fasthttp"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

var ErrNoWebSocket = errors.New("websocket url not configured")

// WatchSSE follows GET /api/match/:id/stream, calling fn for every snapshot until fn returns false,
// ctx ends, or the server closes the stream.
func (c *Client) WatchSSE(ctx context.Context, matchID string, fn func(match.State) bool) error {
	var (
		mu    sync.Mutex
		conns []net.Conn
	)
	dial := c.dial
	if dial == nil {
		dial = fasthttp.Dial
	}
	sc := &fasthttp.Client{
		StreamResponseBody: true,
		WriteTimeout:       c.defaultTimeout,
		Dial: func(addr string) (net.Conn, error) {
			conn, err := dial(addr)
			if err == nil {
				mu.Lock()
				conns = append(conns, conn)
				mu.Unlock()
			}
			return conn, err
		},
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(c.baseURL + "/api/match/" + url.PathEscape(matchID) + "/stream")
	req.Header.Set("Accept", "text/event-stream")
	c.setHeaders(req)

	closeConns := func() {
		mu.Lock()
		defer mu.Unlock()
		for _, conn := range conns {
			_ = conn.Close()
		}
	}
	// fasthttp has no context support; closing the conn unblocks the body read.
	stop := context.AfterFunc(ctx, closeConns)
	defer stop()

	if err := sc.Do(req, resp); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("stream request: %w", err)
	}
	defer resp.CloseBodyStream()
	// runs before CloseBodyStream so it never drains an endless stream
	defer closeConns()
	if status := resp.StatusCode(); status != fasthttp.StatusOK {
		body := resp.Body()
		if bs := resp.BodyStream(); bs != nil {
			body, _ = io.ReadAll(io.LimitReader(bs, 4096))
		}
		return decodeAPIError(status, body)
	}

	bs := resp.BodyStream()
	if bs == nil {
		return errors.New("stream response has no body stream")
	}
	err := readEvents(bs, fn)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// readEvents parses an SSE body. Comment lines (keepalives) are skipped.
func readEvents(r io.Reader, fn func(match.State) bool) error {
	br := bufio.NewReader(r)
	var data strings.Builder
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			if data.Len() == 0 {
				continue
			}
			var st match.State
			if err := json.Unmarshal([]byte(data.String()), &st); err != nil {
				return fmt.Errorf("decode event: %w", err)
			}
			data.Reset()
			if !fn(st) {
				return nil
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
}

// WatchWS follows the WebSocket transport. Same contract as WatchSSE.
func (c *Client) WatchWS(ctx context.Context, matchID string, fn func(match.State) bool) error {
	if c.wsURL == "" {
		return ErrNoWebSocket
	}
	hdr := http.Header{}
	if c.headers != nil {
		for k, v := range c.headers() {
			hdr.Set(k, v)
		}
	}
	conn, resp, err := websocket.Dial(ctx, c.wsURL+"/ws/match/"+url.PathEscape(matchID), &websocket.DialOptions{HTTPHeader: hdr})
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 {
			return &APIError{Status: resp.StatusCode, Message: err.Error()}
		}
		return fmt.Errorf("ws dial: %w", err)
	}
	defer conn.CloseNow()

	for {
		var st match.State
		if err := wsjson.Read(ctx, conn, &st); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.CloseStatus(err) == websocket.StatusGoingAway || websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return fmt.Errorf("ws read: %w", err)
		}
		if !fn(st) {
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return nil
		}
	}
}
