package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ChannelError classifies delivery failures as transient or permanent.
// The retrying sender treats every failure the same within a run; the
// classification feeds logs and metrics.
type ChannelError struct {
	StatusCode int
	Message    string
	Transient  bool
	Cause      error
}

func (e *ChannelError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 4)
	parts = append(parts, "delivery error")

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *ChannelError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IsTransient reports whether a delivery error might succeed on a retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var channelErr *ChannelError
	if errors.As(err, &channelErr) {
		return channelErr.Transient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}
