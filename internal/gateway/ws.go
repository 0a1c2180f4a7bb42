package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/park285/cheese-arena/internal/match"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const defaultWriteTimeout = 5 * time.Second

// NewWSMux serves GET /ws/match/{id}.
func NewWSMux(w Watcher, opts Options, logger *zap.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /ws/match/{id}", WSHandler(w, opts, logger))
	return mux
}

// WSHandler pushes each snapshot as one JSON text message. Clients send nothing.
func WSHandler(w Watcher, opts Options, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	accept := acceptOptions(opts.AllowedOrigins)

	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		id := match.NormalizeID(r.PathValue("id"))
		s, err := Open(w, id, opts.Buffer)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, match.ErrNotFound) {
				status = http.StatusNotFound
			}
			writeJSONError(rw, status, err.Error())
			return
		}
		defer s.Close()

		conn, err := websocket.Accept(rw, r, accept)
		if err != nil {
			logger.Warn("ws_accept_error", zap.String("match_id", id), zap.Error(err))
			return
		}
		defer conn.CloseNow()
		logger.Info("stream_open", zap.String("match_id", id), zap.String("transport", "ws"))

		// CloseRead discards client frames and cancels ctx when the peer goes away.
		ctx := conn.CloseRead(r.Context())
		for {
			st, err := s.Next(ctx)
			if err != nil {
				logger.Info("stream_close", zap.String("match_id", id), zap.String("transport", "ws"), zap.String("reason", closeReason(err)))
				if errors.Is(err, ErrLagging) {
					_ = conn.Close(websocket.StatusPolicyViolation, "client too slow")
					return
				}
				_ = conn.Close(websocket.StatusGoingAway, "")
				return
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err = wsjson.Write(wctx, conn, st)
			cancel()
			if err != nil {
				logger.Info("stream_close", zap.String("match_id", id), zap.String("transport", "ws"), zap.String("reason", "client_gone"))
				return
			}
		}
	})
}

func acceptOptions(origins []string) *websocket.AcceptOptions {
	opts := &websocket.AcceptOptions{}
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "*" {
			opts.InsecureSkipVerify = true
			return opts
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			o = u.Host
		}
		if o != "" {
			opts.OriginPatterns = append(opts.OriginPatterns, o)
		}
	}
	return opts
}

func writeJSONError(rw http.ResponseWriter, status int, msg string) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(map[string]string{"error": msg})
}
