package llm

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	inerrors "insight-engine/internal/common/errors"
	"insight-engine/internal/common/logger"
	"insight-engine/internal/common/metrics"
)

// Client wraps a primary provider with an optional fallback. Calls retry on
// the primary with exponential backoff; a rate-limit answer switches to the
// fallback immediately instead of burning the retry budget.
type Client struct {
	primary  Provider
	fallback Provider
	timeout  time.Duration
	logger   logger.Logger
}

func NewClient(primary, fallback Provider, timeout time.Duration, log logger.Logger) *Client {
	return &Client{
		primary:  primary,
		fallback: fallback,
		timeout:  timeout,
		logger:   log.With(map[string]interface{}{"component": "llm"}),
	}
}

// Complete runs the request against the primary, failing over on rate
// limits. role labels the call site (classifier, selector, narrative) for
// metrics.
func (c *Client) Complete(ctx context.Context, role string, req Request) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	text, err := c.completeWithRetry(cctx, c.primary, role, req)
	if err == nil {
		return text, nil
	}

	if c.fallback != nil && inerrors.CodeOf(err) == inerrors.ErrCodeLLMRateLimited {
		c.logger.Warn("primary provider rate limited, switching to fallback", map[string]interface{}{
			"role":     role,
			"primary":  c.primary.Name(),
			"fallback": c.fallback.Name(),
		})
		return c.completeWithRetry(cctx, c.fallback, role, req)
	}
	return "", err
}

func (c *Client) completeWithRetry(ctx context.Context, p Provider, role string, req Request) (string, error) {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)

	var text string
	op := func() error {
		var err error
		text, err = p.Complete(ctx, req)
		if err == nil {
			metrics.LLMCallsTotal.WithLabelValues(role, p.Name(), "success").Inc()
			return nil
		}
		metrics.LLMCallsTotal.WithLabelValues(role, p.Name(), string(inerrors.CodeOf(err))).Inc()
		switch inerrors.CodeOf(err) {
		case inerrors.ErrCodeLLMRateLimited, inerrors.ErrCodeLLMParseError:
			// Rate limits fail over, parse errors repair at a higher level.
			return backoff.Permanent(err)
		}
		if !inerrors.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	if err := backoff.Retry(op, policy); err != nil {
		return "", err
	}
	return text, nil
}
