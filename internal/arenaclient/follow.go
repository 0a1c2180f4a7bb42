package arenaclient

import (
	"context"
	"errors"

	"github.com/park285/cheese-arena/internal/match"
)

// Transport selects how a watch reaches the server.
type Transport string

const (
	TransportSSE Transport = "sse"
	TransportWS  Transport = "ws"
)

// Follow watches a match and reconnects after transport failures, up to maxAttempts consecutive
// failures with exponential backoff. Every message is a full snapshot, so a reconnect loses nothing
// but intermediate states. API errors (e.g. 404) and fn returning false end the follow.
// onReconnect, if set, is called before each retry.
func (c *Client) Follow(ctx context.Context, matchID string, t Transport, maxAttempts int, fn func(match.State) bool, onReconnect func(attempt int, err error)) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	watch := c.WatchSSE
	if t == TransportWS {
		watch = c.WatchWS
	}

	failures := 0
	for {
		stopped := false
		got := false
		err := watch(ctx, matchID, func(st match.State) bool {
			got = true
			if !fn(st) {
				stopped = true
				return false
			}
			return true
		})
		if stopped || ctx.Err() != nil {
			return ctx.Err()
		}
		var ae *APIError
		if errors.As(err, &ae) || errors.Is(err, ErrNoWebSocket) {
			return err
		}
		if got {
			failures = 0
		}
		failures++
		if failures > maxAttempts {
			if err == nil {
				err = errors.New("stream ended")
			}
			return err
		}
		if onReconnect != nil {
			onReconnect(failures, err)
		}
		if err := sleepWithContext(ctx, backoffDuration(failures)); err != nil {
			return err
		}
	}
}
