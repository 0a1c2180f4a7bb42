package broker

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/park285/cheese-arena/internal/match"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	channelPrefix  = "match:"
	publishTimeout = 2 * time.Second
)

var ErrClosed = errors.New("broker closed")

// Redis fans snapshots out over Redis pub/sub so several server processes can share subscribers.
// Each Subscribe holds its own PubSub connection.
type Redis struct {
	rdb    *redis.Client
	logger *zap.Logger
	owns   bool

	mu     sync.Mutex
	open   map[*redis.PubSub]struct{}
	closed bool
	wg     sync.WaitGroup
}

// Dial connects to rawURL (redis:// or rediss://) and pings it.
func Dial(ctx context.Context, rawURL string, logger *zap.Logger) (*Redis, error) {
	opts, err := parseRedisURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	r := NewRedis(rdb, logger)
	r.owns = true
	return r, nil
}

// NewRedis wraps an existing client. Close does not close rdb.
func NewRedis(rdb *redis.Client, logger *zap.Logger) *Redis {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{rdb: rdb, logger: logger, open: make(map[*redis.PubSub]struct{})}
}

func channel(matchID string) string { return channelPrefix + matchID }

// Notify publishes the snapshot. Failures are logged, never returned to the registry.
func (r *Redis) Notify(matchID string, state match.State) {
	b, err := json.Marshal(state)
	if err != nil {
		r.logger.Error("broker_encode_error", zap.String("match_id", matchID), zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := r.rdb.Publish(ctx, channel(matchID), b).Err(); err != nil {
		r.logger.Warn("broker_publish_error", zap.String("match_id", matchID), zap.Error(err))
	}
}

// Subscribe returns once Redis has confirmed the subscription, so no later publish is missed.
func (r *Redis) Subscribe(matchID string, fn func(match.State)) (func(), error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	ps := r.rdb.Subscribe(ctx, channel(matchID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = ps.Close()
		return nil, ErrClosed
	}
	r.open[ps] = struct{}{}
	r.wg.Add(1)
	r.mu.Unlock()

	msgs := ps.Channel()
	go func() {
		defer r.wg.Done()
		for msg := range msgs {
			var st match.State
			if err := json.Unmarshal([]byte(msg.Payload), &st); err != nil {
				r.logger.Warn("broker_decode_error", zap.String("match_id", matchID), zap.Error(err))
				continue
			}
			r.deliver(matchID, fn, st)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.open, ps)
			r.mu.Unlock()
			_ = ps.Close()
		})
	}, nil
}

func (r *Redis) deliver(matchID string, fn func(match.State), st match.State) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("broker_callback_panic", zap.String("match_id", matchID), zap.Any("panic", p))
		}
	}()
	fn(st)
}

// Close ends every open subscription and waits for their delivery loops.
func (r *Redis) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	open := r.open
	r.open = make(map[*redis.PubSub]struct{})
	r.mu.Unlock()

	for ps := range open {
		_ = ps.Close()
	}
	r.wg.Wait()
	if r.owns {
		return r.rdb.Close()
	}
	return nil
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("missing host")
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid db %q", p)
		}
		db = n
	}
	pass, _ := u.User.Password()
	opts := &redis.Options{Addr: u.Host, Username: u.User.Username(), Password: pass, DB: db}
	if u.Scheme == "rediss" {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12, ServerName: u.Hostname()}
	}
	return opts, nil
}
