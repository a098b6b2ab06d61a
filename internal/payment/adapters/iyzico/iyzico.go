// Package iyzico parses iyzico webhook notifications into canonical
// payment events.
package iyzico

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	paymentdomain "github.com/stockerhq/stocker/internal/payment/domain"
)

const signatureHeader = "X-Iyz-Signature-V3"

type Adapter struct {
	webhookSecret string
}

func New(webhookSecret string) *Adapter {
	return &Adapter{webhookSecret: strings.TrimSpace(webhookSecret)}
}

func (a *Adapter) Provider() string { return "iyzico" }

// Verify checks the HMAC signature iyzico sends with each notification.
// An empty configured secret disables verification for local setups.
func (a *Adapter) Verify(_ context.Context, payload []byte, headers http.Header) error {
	if a.webhookSecret == "" {
		return nil
	}
	signature := strings.TrimSpace(headers.Get(signatureHeader))
	if signature == "" {
		return paymentdomain.ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected)) {
		return paymentdomain.ErrInvalidSignature
	}
	return nil
}

type iyzicoEvent struct {
	IyziEventType         string `json:"iyziEventType"`
	IyziEventTime         int64  `json:"iyziEventTime"`
	IyziReferenceCode     string `json:"iyziReferenceCode"`
	Token                 string `json:"token"`
	PaymentID             int64  `json:"paymentId"`
	PaymentConversationID string `json:"paymentConversationId"`
	Status                string `json:"status"`
	Price                 string `json:"price"`
	Currency              string `json:"currency"`
	ErrorMessage          string `json:"errorMessage"`
}

func (a *Adapter) Parse(_ context.Context, payload []byte) (*paymentdomain.PaymentEvent, error) {
	var event iyzicoEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.IyziReferenceCode) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}
	// the conversation id carries our provider order reference
	if strings.TrimSpace(event.PaymentConversationID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	eventType := ""
	switch strings.ToUpper(strings.TrimSpace(event.IyziEventType)) {
	case "CHECKOUT_FORM_AUTH", "API_AUTH":
		if strings.EqualFold(event.Status, "SUCCESS") {
			eventType = paymentdomain.EventTypePaymentSucceeded
		} else {
			eventType = paymentdomain.EventTypePaymentFailed
		}
	case "REFUND", "REFUND_RETRY":
		eventType = paymentdomain.EventTypeRefunded
	default:
		return nil, paymentdomain.ErrEventIgnored
	}

	occurredAt := time.Now().UTC()
	if event.IyziEventTime > 0 {
		occurredAt = time.UnixMilli(event.IyziEventTime).UTC()
	}

	transactionID := ""
	if event.PaymentID > 0 {
		transactionID = strconv.FormatInt(event.PaymentID, 10)
	}

	return &paymentdomain.PaymentEvent{
		Provider:        a.Provider(),
		ProviderEventID: event.IyziReferenceCode,
		ProviderOrderID: event.PaymentConversationID,
		TransactionID:   transactionID,
		Type:            eventType,
		Currency:        strings.ToUpper(strings.TrimSpace(event.Currency)),
		FailureReason:   strings.TrimSpace(event.ErrorMessage),
		OccurredAt:      occurredAt,
		RawPayload:      payload,
	}, nil
}
