package exchange

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"arbiter/internal/config"

	"github.com/gorilla/websocket"
)

// errMalformed marks a payload that could not be parsed into a canonical
// record. Such messages are dropped and counted, never fatal.
var errMalformed = errors.New("malformed feed message")

// feedRuntime carries the reconnect supervision shared by all feed handlers:
// deterministic exponential backoff, a malformed-message counter with a
// per-connection threshold that forces a reconnect, and attempt-count reset
// after a sustained healthy connection.
type feedRuntime struct {
	logger    *slog.Logger
	name      string
	cfg       config.FeedConfig
	malformed atomic.Uint64
}

func newFeedRuntime(logger *slog.Logger, name string, cfg config.FeedConfig) feedRuntime {
	return feedRuntime{logger: logger, name: name, cfg: cfg}
}

// Malformed returns the total count of dropped unparseable messages.
func (f *feedRuntime) Malformed() uint64 {
	return f.malformed.Load()
}

// run owns one persistent streaming connection. dial opens and subscribes;
// handle parses one payload, returning errMalformed for droppable garbage.
// Returns nil when ctx is cancelled.
func (f *feedRuntime) run(ctx context.Context, dial func(ctx context.Context) (*websocket.Conn, error), handle func(payload []byte) error) error {
	attempt := 0
	for {
		select {
		case <-ctx.Done():
			f.logger.Info("feed: context cancelled, shutting down", "feed", f.name)
			return nil
		default:
		}

		conn, err := dial(ctx)
		if err != nil {
			delay := f.nextBackoff(&attempt, time.Time{})
			f.logger.Error("feed: connection failed", "feed", f.name, "error", err, "backoff", delay)
			if !sleepCtx(ctx, delay) {
				return nil
			}
			continue
		}
		f.logger.Info("feed: connected", "feed", f.name)
		connectedAt := time.Now()

		malformedRun := 0
		for {
			select {
			case <-ctx.Done():
				f.logger.Info("feed: context cancelled, closing connection", "feed", f.name)
				conn.Close()
				return nil
			default:
			}

			_, payload, err := conn.ReadMessage()
			if err != nil {
				f.logger.Error("feed: read failed", "feed", f.name, "error", err)
				break
			}
			if err := handle(payload); err != nil {
				f.malformed.Add(1)
				malformedRun++
				f.logger.Warn("feed: dropping message", "feed", f.name, "error", err)
				if f.cfg.MalformedLimit > 0 && malformedRun >= f.cfg.MalformedLimit {
					f.logger.Error("feed: malformed threshold exceeded, reconnecting", "feed", f.name, "count", malformedRun)
					break
				}
				continue
			}
			malformedRun = 0
		}
		conn.Close()

		delay := f.nextBackoff(&attempt, connectedAt)
		f.logger.Info("feed: reconnecting", "feed", f.name, "backoff", delay, "attempt", attempt)
		if !sleepCtx(ctx, delay) {
			return nil
		}
	}
}

// nextBackoff returns the delay for the current attempt index and then
// advances it. A connection that stayed healthy past the reset window starts
// the schedule over at the base delay; a zero connectedAt means no
// connection was established at all.
func (f *feedRuntime) nextBackoff(attempt *int, connectedAt time.Time) time.Duration {
	if !connectedAt.IsZero() && time.Since(connectedAt) >= f.cfg.HealthyReset() {
		*attempt = 0
	}
	delay := Backoff(*attempt, f.cfg.BackoffBase(), f.cfg.BackoffCap())
	*attempt++
	return delay
}

// sleepCtx waits for d, returning false if the context was cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
