package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultSendTimeout = 20 * time.Second

// Brazilian country code prepended to numbers submitted without one.
const defaultCountryCode = "55"

var nonDigits = regexp.MustCompile(`\D`)

// WhatsAppProvider delivers texts through a CallMeBot-compatible WhatsApp
// HTTP gateway. The gateway is best-effort: it answers 200 for several
// failure modes and signals the real outcome in the response body, so the
// body is sniffed for known markers and an ambiguous 200 counts as a
// failure rather than a silent false positive.
type WhatsAppProvider struct {
	client   *resty.Client
	endpoint string
	apiKey   string
}

func NewWhatsAppProvider(endpoint, apiKey string) (*WhatsAppProvider, error) {
	client := resty.New()
	client.SetTimeout(defaultSendTimeout)
	client.SetRetryCount(0)

	return NewWhatsAppProviderWithClient(endpoint, apiKey, client)
}

func NewWhatsAppProviderWithClient(endpoint, apiKey string, client *resty.Client) (*WhatsAppProvider, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("whatsapp endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid whatsapp endpoint: %w", err)
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("whatsapp api key is required")
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultSendTimeout)
	}
	client.SetRetryCount(0)

	return &WhatsAppProvider{
		client:   client,
		endpoint: trimmedEndpoint,
		apiKey:   strings.TrimSpace(apiKey),
	}, nil
}

func (p *WhatsAppProvider) Send(ctx context.Context, phone string, text string) (*SendReceipt, error) {
	if p == nil || p.client == nil {
		return nil, fmt.Errorf("provider is not initialized")
	}

	normalized, err := NormalizePhone(phone)
	if err != nil {
		return nil, &ChannelError{Message: err.Error(), Transient: false, Cause: err}
	}
	if strings.TrimSpace(text) == "" {
		return nil, &ChannelError{Message: "message text is empty", Transient: false}
	}

	response, err := p.client.R().
		SetContext(ctx).
		SetQueryParam("phone", normalized).
		SetQueryParam("text", text).
		SetQueryParam("apikey", p.apiKey).
		Get(p.endpoint)
	if err != nil {
		return nil, &ChannelError{
			Message:   "whatsapp gateway request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response == nil {
		return nil, &ChannelError{
			Message:   "whatsapp gateway returned empty response",
			Transient: true,
		}
	}

	statusCode := response.StatusCode()
	body := strings.TrimSpace(response.String())

	if statusCode != http.StatusOK {
		return nil, &ChannelError{
			StatusCode: statusCode,
			Message:    gatewayErrorMessage(statusCode, body),
			Transient:  isTransientHTTPStatus(statusCode),
		}
	}

	lower := strings.ToLower(body)
	if strings.Contains(lower, "error") || strings.Contains(lower, "must add the number") {
		return nil, &ChannelError{
			StatusCode: statusCode,
			Message:    gatewayErrorMessage(statusCode, body),
			Transient:  false,
		}
	}
	if strings.Contains(body, "Message Sent") || strings.Contains(body, "Message queued") {
		return &SendReceipt{
			StatusCode: statusCode,
			Body:       body,
			MessageID:  receiptMessageID(response),
		}, nil
	}

	// 200 with no recognizable confirmation.
	return nil, &ChannelError{
		StatusCode: statusCode,
		Message:    fmt.Sprintf("ambiguous gateway response: %s", body),
		Transient:  true,
	}
}

// NormalizePhone strips formatting and prepends the Brazilian country code
// to bare local numbers. The gateway rejects anything outside the 12-13
// digit range for BR destinations.
func NormalizePhone(phone string) (string, error) {
	digits := nonDigits.ReplaceAllString(strings.TrimSpace(phone), "")
	if digits == "" {
		return "", fmt.Errorf("phone number is empty")
	}

	if !strings.HasPrefix(digits, defaultCountryCode) {
		switch {
		case len(digits) >= 10 && len(digits) <= 11:
			digits = defaultCountryCode + digits
		case len(digits) == 12 && strings.HasPrefix(digits, "0"):
			digits = defaultCountryCode + digits[1:]
		}
	}

	if len(digits) < 12 || len(digits) > 13 {
		return "", fmt.Errorf("phone number %q normalizes to invalid %q", phone, digits)
	}

	return digits, nil
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

func gatewayErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("gateway returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}

func receiptMessageID(response *resty.Response) string {
	if response == nil {
		return ""
	}

	for _, key := range []string{"X-Request-ID", "X-Request-Id", "X-Message-ID", "X-Message-Id"} {
		if value := strings.TrimSpace(response.Header().Get(key)); value != "" {
			return value
		}
	}

	return ""
}
