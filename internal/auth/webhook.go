package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	svix "github.com/svix/svix-webhooks/go"
)

// Header names of the signed webhook envelope.
const (
	HeaderWebhookID        = "svix-id"
	HeaderWebhookTimestamp = "svix-timestamp"
	HeaderWebhookSignature = "svix-signature"
)

var (
	ErrMissingWebhookHeaders = errors.New("auth: missing webhook signature headers")
	ErrInvalidWebhook        = errors.New("auth: webhook signature verification failed")
)

// IdentityEvent is one verified event from the identity provider. Data is
// kept raw; each event type decodes the part it needs.
type IdentityEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// WebhookVerifier authenticates a raw webhook body and decodes it.
type WebhookVerifier interface {
	Verify(payload []byte, headers http.Header) (*IdentityEvent, error)
}

// SvixVerifier checks the svix-style HMAC signature (id + timestamp + body)
// and rejects stale timestamps.
type SvixVerifier struct {
	wh *svix.Webhook
}

// NewSvixVerifier takes the signing secret as shown by the provider,
// e.g. "whsec_MfKQ9r8GKYqrTwjUPD8ILPZIo2LaLaSw".
func NewSvixVerifier(secret string) (*SvixVerifier, error) {
	if secret == "" {
		return nil, errors.New("auth: webhook secret must not be empty")
	}
	wh, err := svix.NewWebhook(secret)
	if err != nil {
		return nil, fmt.Errorf("auth: creating webhook verifier: %w", err)
	}
	return &SvixVerifier{wh: wh}, nil
}

func (v *SvixVerifier) Verify(payload []byte, headers http.Header) (*IdentityEvent, error) {
	if headers.Get(HeaderWebhookID) == "" ||
		headers.Get(HeaderWebhookTimestamp) == "" ||
		headers.Get(HeaderWebhookSignature) == "" {
		return nil, ErrMissingWebhookHeaders
	}

	if err := v.wh.Verify(payload, headers); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidWebhook, err)
	}

	var event IdentityEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: decoding event: %w", ErrInvalidWebhook, err)
	}
	if event.Type == "" {
		return nil, fmt.Errorf("%w: event has no type", ErrInvalidWebhook)
	}
	return &event, nil
}
