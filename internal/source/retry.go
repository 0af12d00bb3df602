package source

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/danmuck/rootio/internal/protocol"
	"github.com/danmuck/rootio/internal/protocol/cursor"
	"github.com/rs/zerolog/log"
)

// RetryConfig bounds retries of failed fetches. Attempts counts the first
// try; values below 2 disable retries.
type RetryConfig struct {
	Attempts     int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Attempts:     3,
		InitialDelay: 100 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     2 * time.Second,
		Jitter:       true,
	}
}

// nextDelay returns the wait before attempt n (1-based); the first retry
// waits InitialDelay.
func nextDelay(cfg RetryConfig, attempt int, random func() float64) time.Duration {
	if attempt <= 1 || cfg.InitialDelay <= 0 {
		return max(cfg.InitialDelay, 0)
	}
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = 1.0
	}
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		f := 0.5
		if random != nil {
			f = 0.5 + random()
		}
		delay *= f
	}
	return time.Duration(delay)
}

// retryable reports whether err may go away on a second try. Range and
// decode errors are properties of the request, and a cancelled context
// stays cancelled.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return protocol.KindOf(err) == "other"
}

// Retry re-issues fetches through next that fail with a transient error.
func Retry(next cursor.Fetcher, cfg RetryConfig) cursor.Fetcher {
	if cfg.Attempts < 2 {
		return next
	}
	return cursor.FetchFunc(func(ctx context.Context, offset, size uint64) ([]byte, error) {
		var err error
		for attempt := 1; ; attempt++ {
			var data []byte
			data, err = next.Fetch(ctx, offset, size)
			if err == nil || !retryable(err) || attempt >= cfg.Attempts {
				return data, err
			}
			delay := nextDelay(cfg, attempt, rand.Float64)
			log.Debug().
				Err(err).
				Int("attempt", attempt).
				Uint64("offset", offset).
				Dur("delay", delay).
				Msg("fetch retry")
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, errors.Join(err, ctx.Err())
			case <-timer.C:
			}
		}
	})
}
