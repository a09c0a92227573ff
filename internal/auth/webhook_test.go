package auth

import (
	"encoding/base64"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	svix "github.com/svix/svix-webhooks/go"
)

var testWebhookSecret = "whsec_" + base64.StdEncoding.EncodeToString([]byte("a-test-signing-key-of-32-bytes!!"))

// signedHeaders signs payload the way the provider would.
func signedHeaders(t *testing.T, secret string, payload []byte, at time.Time) http.Header {
	t.Helper()
	wh, err := svix.NewWebhook(secret)
	require.NoError(t, err)

	sig, err := wh.Sign("msg_1", at, payload)
	require.NoError(t, err)

	h := http.Header{}
	h.Set(HeaderWebhookID, "msg_1")
	h.Set(HeaderWebhookTimestamp, strconv.FormatInt(at.Unix(), 10))
	h.Set(HeaderWebhookSignature, sig)
	return h
}

func TestSvixVerifier_Valid(t *testing.T) {
	v, err := NewSvixVerifier(testWebhookSecret)
	require.NoError(t, err)

	payload := []byte(`{"type":"user.created","data":{"id":"user_1"}}`)
	event, err := v.Verify(payload, signedHeaders(t, testWebhookSecret, payload, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, "user.created", event.Type)
	assert.JSONEq(t, `{"id":"user_1"}`, string(event.Data))
}

func TestSvixVerifier_MissingHeaders(t *testing.T) {
	v, err := NewSvixVerifier(testWebhookSecret)
	require.NoError(t, err)

	payload := []byte(`{"type":"user.created","data":{}}`)
	headers := signedHeaders(t, testWebhookSecret, payload, time.Now())
	headers.Del(HeaderWebhookSignature)

	_, err = v.Verify(payload, headers)
	assert.ErrorIs(t, err, ErrMissingWebhookHeaders)
}

func TestSvixVerifier_Rejects(t *testing.T) {
	v, err := NewSvixVerifier(testWebhookSecret)
	require.NoError(t, err)
	otherSecret := "whsec_" + base64.StdEncoding.EncodeToString([]byte("some-other-signing-key-32-bytes!"))

	payload := []byte(`{"type":"user.deleted","data":{"id":"user_1"}}`)

	t.Run("tampered body", func(t *testing.T) {
		headers := signedHeaders(t, testWebhookSecret, payload, time.Now())
		_, err := v.Verify([]byte(`{"type":"user.deleted","data":{"id":"user_2"}}`), headers)
		assert.ErrorIs(t, err, ErrInvalidWebhook)
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := v.Verify(payload, signedHeaders(t, otherSecret, payload, time.Now()))
		assert.ErrorIs(t, err, ErrInvalidWebhook)
	})

	t.Run("stale timestamp", func(t *testing.T) {
		_, err := v.Verify(payload, signedHeaders(t, testWebhookSecret, payload, time.Now().Add(-time.Hour)))
		assert.ErrorIs(t, err, ErrInvalidWebhook)
	})

	t.Run("signed but typeless", func(t *testing.T) {
		body := []byte(`{"data":{}}`)
		_, err := v.Verify(body, signedHeaders(t, testWebhookSecret, body, time.Now()))
		assert.ErrorIs(t, err, ErrInvalidWebhook)
	})
}

func TestNewSvixVerifier_EmptySecret(t *testing.T) {
	_, err := NewSvixVerifier("")
	assert.Error(t, err)
}
