package session

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/danmuck/techread/internal/protocol"
)

// NextBackoffDelay returns the retry delay for attempt N (1-based).
func NextBackoffDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if attempt <= 1 {
		return cfg.InitialDelay
	}
	if cfg.InitialDelay <= 0 {
		return 0
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
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay = delay * f
	}
	return time.Duration(delay)
}

// Retryable reports whether an Open failure is worth another attempt. Only
// transport failures qualify; auth and server answers are final.
func Retryable(err error) bool {
	if errors.Is(err, protocol.ErrUnauthorized) || errors.Is(err, protocol.ErrServer) {
		return false
	}
	return errors.Is(err, protocol.ErrConnection)
}

// OpenWithRetry opens a session, retrying transport failures with backoff.
// maxAttempts <= 0 retries until ctx is done.
func (c *Client) OpenWithRetry(ctx context.Context, maxAttempts int) (*Session, error) {
	var attempt int
	for {
		attempt++
		s, err := c.Open(ctx)
		if err == nil {
			return s, nil
		}
		c.log.Warn().Int("attempt", attempt).Str("server", c.cfg.ServerWSS).Err(err).Msg("session.OpenWithRetry open failed")
		if !Retryable(err) || (maxAttempts > 0 && attempt >= maxAttempts) {
			return nil, err
		}
		if err := c.sleepBackoff(ctx, attempt); err != nil {
			return nil, err
		}
	}
}

func (c *Client) sleepBackoff(ctx context.Context, attempt int) error {
	c.rngMu.Lock()
	delay := NextBackoffDelay(c.cfg.Backoff, attempt, c.rng)
	c.rngMu.Unlock()
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isUnauthorized(err error) bool {
	return errors.Is(err, protocol.ErrUnauthorized)
}
