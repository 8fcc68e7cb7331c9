package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/junbin-yang/cansoftbus-go/pkg/utils/logger"
)

// RetryPolicy 握手重试策略
type RetryPolicy struct {
	Attempts int           // 最多尝试次数
	Timeout  time.Duration // 单次等待应答的超时
	Backoff  time.Duration // 两次尝试之间的等待
	Clock    clockwork.Clock
}

// DefaultRetryPolicy 3次尝试，每次2秒，间隔500毫秒
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts: 3,
		Timeout:  2 * time.Second,
		Backoff:  500 * time.Millisecond,
		Clock:    clockwork.NewRealClock(),
	}
}

// Negotiate 带超时与重试的握手。只有等待超时会重试；传输错误直接返回。
func Negotiate(ctx context.Context, c *Client, p RetryPolicy) (*Session, error) {
	if p.Attempts <= 0 {
		p.Attempts = 1
	}
	if p.Clock == nil {
		p.Clock = clockwork.NewRealClock()
	}
	tag := c.Session().GetClientTag()

	for attempt := 1; ; attempt++ {
		s, err := bindOnce(ctx, c, p)
		if err == nil {
			return s, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		if attempt >= p.Attempts {
			return nil, fmt.Errorf("%w: client %#x after %d attempts", ErrHandshakeTimeout, tag, attempt)
		}

		logger.Warnf("Client %#x handshake attempt %d/%d timed out", tag, attempt, p.Attempts)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-p.Clock.After(p.Backoff):
		}
	}
}

func bindOnce(ctx context.Context, c *Client, p RetryPolicy) (*Session, error) {
	if p.Timeout <= 0 {
		return c.Bind(ctx)
	}
	attemptCtx, cancel := clockwork.WithTimeout(ctx, p.Clock, p.Timeout)
	defer cancel()
	return c.Bind(attemptCtx)
}
