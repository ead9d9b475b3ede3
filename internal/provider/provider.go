package provider

import "context"

// DeliveryChannel is the outbound message delivery port. Implementations
// own their transport and session lifecycle; the dispatch pipeline only
// hands over a destination and a text.
type DeliveryChannel interface {
	Send(ctx context.Context, phone string, text string) (*SendReceipt, error)
}

// SendReceipt stores delivery call metadata for audit and persistence.
type SendReceipt struct {
	StatusCode int
	Body       string
	MessageID  string
}
