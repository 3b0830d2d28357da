package telegram

import (
	"context"
	"regexp"
	"strconv"
	"time"
)

var floodPatterns = []*regexp.Regexp{
	regexp.MustCompile(`FLOOD_WAIT_(\d+)`),
	regexp.MustCompile(`FLOOD_PREMIUM_WAIT_(\d+)`),
	regexp.MustCompile(`(?i)a wait of (\d+) seconds`),
	regexp.MustCompile(`(?i)retry after (\d+)`),
}

// FloodWait extracts the wait Telegram asked for from a flood-control error.
func FloodWait(err error) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}
	msg := err.Error()
	for _, re := range floodPatterns {
		if m := re.FindStringSubmatch(msg); m != nil {
			n, convErr := strconv.Atoi(m[1])
			if convErr != nil {
				continue
			}
			return time.Duration(n) * time.Second, true
		}
	}
	return 0, false
}

// Sleeper pauses for d or until ctx is done. Tests replace it to avoid
// real waits.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// RealSleeper sleeps on the wall clock.
type RealSleeper struct{}

func (RealSleeper) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WithFloodRetry runs fn and, if it fails with FLOOD_WAIT_n, waits n+1
// seconds and runs it exactly once more. The second error is returned as is.
func WithFloodRetry(ctx context.Context, s Sleeper, fn func() error) error {
	err := fn()
	wait, ok := FloodWait(err)
	if !ok {
		return err
	}
	if s == nil {
		s = RealSleeper{}
	}
	if err := s.Sleep(ctx, wait+time.Second); err != nil {
		return err
	}
	return fn()
}
