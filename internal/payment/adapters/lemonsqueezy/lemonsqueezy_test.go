package lemonsqueezy

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"testing"

	paymentdomain "github.com/stockerhq/stocker/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	adapter := New("topsecret")
	payload := []byte(`{"meta":{"event_name":"order_created"}}`)

	headers := http.Header{}
	headers.Set("X-Signature", sign("topsecret", payload))
	assert.NoError(t, adapter.Verify(context.Background(), payload, headers))

	headers.Set("X-Signature", sign("wrongsecret", payload))
	assert.ErrorIs(t, adapter.Verify(context.Background(), payload, headers), paymentdomain.ErrInvalidSignature)
}

func TestParsePaidOrder(t *testing.T) {
	adapter := New("")
	payload := []byte(`{
		"meta": {
			"event_name": "order_created",
			"custom_data": {"order_reference": "ORD-01HZX0"}
		},
		"data": {
			"id": "482934",
			"attributes": {
				"identifier": "ls-uuid-1",
				"status": "paid",
				"total": 16800,
				"currency": "usd",
				"created_at": "2024-06-01T10:00:00Z"
			}
		}
	}`)

	event, err := adapter.Parse(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, "lemonsqueezy", event.Provider)
	assert.Equal(t, paymentdomain.EventTypePaymentSucceeded, event.Type)
	assert.Equal(t, "order_created:482934", event.ProviderEventID)
	assert.Equal(t, "ORD-01HZX0", event.ProviderOrderID)
	assert.Equal(t, "482934", event.TransactionID)
	assert.Equal(t, int64(16800), event.Amount)
	assert.Equal(t, "USD", event.Currency)
}

func TestParseUnpaidOrderIsFailure(t *testing.T) {
	adapter := New("")
	payload := []byte(`{
		"meta": {"event_name": "order_created"},
		"data": {
			"id": "482935",
			"attributes": {"identifier": "ls-uuid-2", "status": "failed"}
		}
	}`)

	event, err := adapter.Parse(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.EventTypePaymentFailed, event.Type)
	assert.Equal(t, "ls-uuid-2", event.ProviderOrderID)
}

func TestParseRefund(t *testing.T) {
	adapter := New("")
	payload := []byte(`{
		"meta": {"event_name": "order_refunded", "custom_data": {"order_reference": "ORD-01HZX1"}},
		"data": {"id": "482936", "attributes": {"status": "refunded"}}
	}`)

	event, err := adapter.Parse(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.EventTypeRefunded, event.Type)
}

func TestParseIgnoresUnknownEvents(t *testing.T) {
	adapter := New("")
	payload := []byte(`{
		"meta": {"event_name": "subscription_created"},
		"data": {"id": "482937", "attributes": {"identifier": "ls-uuid-3"}}
	}`)

	_, err := adapter.Parse(context.Background(), payload)
	assert.ErrorIs(t, err, paymentdomain.ErrEventIgnored)
}

func TestParseRejectsMissingOrderReference(t *testing.T) {
	adapter := New("")
	payload := []byte(`{
		"meta": {"event_name": "order_created"},
		"data": {"id": "482938", "attributes": {"status": "paid"}}
	}`)

	_, err := adapter.Parse(context.Background(), payload)
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidEvent)
}
