package notifier

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"golang.org/x/time/rate"

	"hwbot/internal/transport"
	"hwbot/pkg/logx"
)

// send tries n up to 1+RetryMax times, each attempt waiting on the rate
// limiter and bounded by SendTimeout. It returns the attempts made.
func (s *Service) send(ctx context.Context, cfg Config, lim *rate.Limiter, sender transport.Sender, n transport.Notification) (int, error) {
	total := 1 + cfg.RetryMax
	var lastErr error
	for attempt := 1; attempt <= total; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			if lastErr == nil {
				lastErr = err
			}
			return attempt - 1, lastErr
		}

		sctx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		_, err := sender.SendText(sctx, n.Target, n.Text, n.Options)
		cancel()
		if err == nil {
			return attempt, nil
		}
		lastErr = err
		var pe *transport.PartialSendError
		if errors.As(err, &pe) && pe.Rest != "" {
			// Only the undelivered tail is retried.
			n.Text = pe.Rest
		}
		s.log.Debug("notify send failed",
			logx.Err(err),
			logx.Int("attempt", attempt),
			logx.Int("of", total),
		)
		if attempt == total || !pause(ctx, retryDelay(cfg, attempt)) {
			return attempt, lastErr
		}
	}
	return total, lastErr
}

// retryDelay is the wait after the given failed attempt: RetryBase doubled
// per attempt with ±30% jitter, capped at RetryMaxDelay.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt && d < cfg.RetryMaxDelay; i++ {
		d *= 2
	}
	d = time.Duration(float64(min(d, cfg.RetryMaxDelay)) * (0.7 + 0.6*rand.Float64()))
	return min(max(d, 0), cfg.RetryMaxDelay)
}

func pause(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
