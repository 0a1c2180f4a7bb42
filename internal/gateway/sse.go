package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/park285/cheese-arena/internal/match"
	"go.uber.org/zap"
)

type Options struct {
	Buffer         int
	Keepalive      time.Duration
	WriteTimeout   time.Duration
	AllowedOrigins []string
}

// DefaultKeepalive is used when Options.Keepalive is unset. A quiet SSE stream is only noticed
// as disconnected when a write fails, so it always needs a keepalive.
const DefaultKeepalive = 15 * time.Second

func (o Options) keepalive() time.Duration {
	if o.Keepalive <= 0 {
		return DefaultKeepalive
	}
	return o.Keepalive
}

// SSEHandler streams full match snapshots as `data: <json>` events.
func SSEHandler(w Watcher, opts Options, logger *zap.Logger) fiber.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	keepalive := opts.keepalive()
	return func(c *fiber.Ctx) error {
		id := match.NormalizeID(c.Params("id"))
		s, err := Open(w, id, opts.Buffer)
		if errors.Is(err, match.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
		}
		if err != nil {
			return err
		}

		c.Set(fiber.HeaderContentType, "text/event-stream")
		c.Set(fiber.HeaderCacheControl, "no-cache")
		c.Set(fiber.HeaderConnection, "keep-alive")
		c.Set("X-Accel-Buffering", "no")

		// c is recycled once the handler returns; keep only the fasthttp ctx
		fctx := c.Context()
		logger.Info("stream_open", zap.String("match_id", id), zap.String("transport", "sse"))
		fctx.SetBodyStreamWriter(func(bw *bufio.Writer) {
			defer s.Close()
			err := pump(fctx, s, bw, keepalive)
			logger.Info("stream_close", zap.String("match_id", id), zap.String("transport", "sse"), zap.String("reason", closeReason(err)))
		})
		return nil
	}
}

// pump writes events until the stream ends or a write fails (the client went away).
// With keepalive > 0 an SSE comment is sent after that long without a snapshot.
func pump(ctx context.Context, s *Stream, w *bufio.Writer, keepalive time.Duration) error {
	for {
		nctx, cancel := ctx, context.CancelFunc(func() {})
		if keepalive > 0 {
			nctx, cancel = context.WithTimeout(ctx, keepalive)
		}
		st, err := s.Next(nctx)
		cancel()
		switch {
		case err == nil:
			b, err := json.Marshal(st)
			if err != nil {
				return err
			}
			if _, err := w.WriteString("data: "); err != nil {
				return err
			}
			if _, err := w.Write(b); err != nil {
				return err
			}
			if _, err := w.WriteString("\n\n"); err != nil {
				return err
			}
		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			if _, err := w.WriteString(": keepalive\n\n"); err != nil {
				return err
			}
		default:
			return err
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}
}

func closeReason(err error) string {
	switch {
	case errors.Is(err, ErrLagging):
		return "lagging"
	case errors.Is(err, ErrClosed):
		return "closed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "shutdown"
	case err == nil:
		return "eof"
	default:
		return "client_gone"
	}
}
