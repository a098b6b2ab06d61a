package iyzico

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
	payload := []byte(`{"iyziEventType":"API_AUTH"}`)

	headers := http.Header{}
	headers.Set("X-Iyz-Signature-V3", sign("topsecret", payload))
	assert.NoError(t, adapter.Verify(context.Background(), payload, headers))

	headers.Set("X-Iyz-Signature-V3", sign("wrongsecret", payload))
	assert.ErrorIs(t, adapter.Verify(context.Background(), payload, headers), paymentdomain.ErrInvalidSignature)

	headers.Del("X-Iyz-Signature-V3")
	assert.ErrorIs(t, adapter.Verify(context.Background(), payload, headers), paymentdomain.ErrInvalidSignature)
}

func TestVerifySkippedWithoutSecret(t *testing.T) {
	adapter := New("")
	assert.NoError(t, adapter.Verify(context.Background(), []byte("{}"), http.Header{}))
}

func TestParseSuccessfulAuth(t *testing.T) {
	adapter := New("")
	payload := []byte(`{
		"iyziEventType": "CHECKOUT_FORM_AUTH",
		"iyziEventTime": 1717236000000,
		"iyziReferenceCode": "ref-123",
		"paymentId": 987654,
		"paymentConversationId": "ORD-01HZX0",
		"status": "SUCCESS",
		"currency": "try"
	}`)

	event, err := adapter.Parse(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, "iyzico", event.Provider)
	assert.Equal(t, paymentdomain.EventTypePaymentSucceeded, event.Type)
	assert.Equal(t, "ref-123", event.ProviderEventID)
	assert.Equal(t, "ORD-01HZX0", event.ProviderOrderID)
	assert.Equal(t, "987654", event.TransactionID)
	assert.Equal(t, "TRY", event.Currency)
	assert.Equal(t, int64(1717236000000), event.OccurredAt.UnixMilli())
}

func TestParseFailedAuth(t *testing.T) {
	adapter := New("")
	payload := []byte(`{
		"iyziEventType": "API_AUTH",
		"iyziReferenceCode": "ref-124",
		"paymentConversationId": "ORD-01HZX1",
		"status": "FAILURE",
		"errorMessage": "insufficient funds"
	}`)

	event, err := adapter.Parse(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.EventTypePaymentFailed, event.Type)
	assert.Equal(t, "insufficient funds", event.FailureReason)
}

func TestParseRefund(t *testing.T) {
	adapter := New("")
	payload := []byte(`{
		"iyziEventType": "REFUND",
		"iyziReferenceCode": "ref-125",
		"paymentConversationId": "ORD-01HZX2",
		"status": "SUCCESS"
	}`)

	event, err := adapter.Parse(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.EventTypeRefunded, event.Type)
}

func TestParseIgnoresUnknownEventTypes(t *testing.T) {
	adapter := New("")
	payload := []byte(`{
		"iyziEventType": "SUBSCRIPTION_ORDER_SUCCESS",
		"iyziReferenceCode": "ref-126",
		"paymentConversationId": "ORD-01HZX3"
	}`)

	_, err := adapter.Parse(context.Background(), payload)
	assert.ErrorIs(t, err, paymentdomain.ErrEventIgnored)
}

func TestParseRejectsMissingReference(t *testing.T) {
	adapter := New("")

	_, err := adapter.Parse(context.Background(), []byte(`{"iyziEventType":"API_AUTH","paymentConversationId":"ORD-1"}`))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidEvent)

	_, err = adapter.Parse(context.Background(), []byte(`{"iyziEventType":"API_AUTH","iyziReferenceCode":"ref-1"}`))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidEvent)

	_, err = adapter.Parse(context.Background(), []byte(`not json`))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidPayload)
}
