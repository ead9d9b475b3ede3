package service

import (
	"context"
	"time"

	"github.com/billingdesk/invoice-notifier/internal/domain"
	"github.com/billingdesk/invoice-notifier/internal/observability"
	"github.com/billingdesk/invoice-notifier/internal/provider"
	"go.uber.org/zap"
)

const (
	defaultMaxAttempts = 3
	defaultRetryDelay  = 5 * time.Second
	defaultSendTimeout = 20 * time.Second
)

// SendResult is the terminal outcome of delivering one message, after
// retries are exhausted or a send succeeds.
type SendResult struct {
	Outcome           domain.Outcome
	Attempts          int
	ProviderMessageID string
	FailureDetail     string
}

// RetryingSender wraps a DeliveryChannel with a bounded retry policy: up
// to maxAttempts tries with a fixed delay between failures and none after
// the last. The channel is best-effort with no delivery guarantee; a few
// seconds of extra latency per recipient buys better odds without a
// queueing system.
type RetryingSender struct {
	channel     provider.DeliveryChannel
	maxAttempts int
	retryDelay  time.Duration
	sendTimeout time.Duration
	logger      *zap.Logger
	metrics     *observability.Metrics
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewRetryingSender(
	channel provider.DeliveryChannel,
	maxAttempts int,
	retryDelay time.Duration,
	sendTimeout time.Duration,
	logger *zap.Logger,
) *RetryingSender {
	if maxAttempts < 1 {
		maxAttempts = defaultMaxAttempts
	}
	if retryDelay < 0 {
		retryDelay = defaultRetryDelay
	}
	if sendTimeout <= 0 {
		sendTimeout = defaultSendTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RetryingSender{
		channel:     channel,
		maxAttempts: maxAttempts,
		retryDelay:  retryDelay,
		sendTimeout: sendTimeout,
		logger:      logger,
		sleep:       sleepWithContext,
	}
}

func (s *RetryingSender) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Send delivers one text, retrying failed attempts. Every channel error
// is absorbed into the result; Send never propagates a delivery failure
// as an error so a dead gateway cannot abort a dispatch run.
func (s *RetryingSender) Send(ctx context.Context, phone string, text string) SendResult {
	if ctx == nil {
		ctx = context.Background()
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		receipt, err := s.attempt(ctx, phone, text)
		if err == nil {
			messageID := ""
			if receipt != nil {
				messageID = receipt.MessageID
			}
			return SendResult{
				Outcome:           domain.OutcomeSent,
				Attempts:          attempt,
				ProviderMessageID: messageID,
			}
		}

		lastErr = err
		s.logger.Warn("delivery attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("maxAttempts", s.maxAttempts),
			zap.Bool("transient", provider.IsTransient(err)),
			zap.Error(err),
		)
		if s.metrics != nil && attempt > 1 {
			s.metrics.AddSendRetries(1)
		}

		if attempt == s.maxAttempts {
			break
		}
		if err := s.sleep(ctx, s.retryDelay); err != nil {
			// Context gone; report what happened so far.
			return SendResult{
				Outcome:       domain.OutcomeFailed,
				Attempts:      attempt,
				FailureDetail: lastErr.Error(),
			}
		}
	}

	detail := "delivery failed"
	if lastErr != nil {
		detail = lastErr.Error()
	}
	return SendResult{
		Outcome:       domain.OutcomeFailed,
		Attempts:      s.maxAttempts,
		FailureDetail: detail,
	}
}

// attempt performs one channel call under the sender-level timeout, in
// case the collaborator does not enforce one itself.
func (s *RetryingSender) attempt(ctx context.Context, phone string, text string) (*provider.SendReceipt, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()

	start := time.Now()
	receipt, err := s.channel.Send(attemptCtx, phone, text)
	if s.metrics != nil {
		s.metrics.ObserveSendAttemptDuration(time.Since(start))
	}
	return receipt, err
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
