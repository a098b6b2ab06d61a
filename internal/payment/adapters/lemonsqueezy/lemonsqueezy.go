// Package lemonsqueezy parses Lemon Squeezy webhook events into canonical
// payment events.
package lemonsqueezy

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	paymentdomain "github.com/stockerhq/stocker/internal/payment/domain"
)

const signatureHeader = "X-Signature"

type Adapter struct {
	webhookSecret string
}

func New(webhookSecret string) *Adapter {
	return &Adapter{webhookSecret: strings.TrimSpace(webhookSecret)}
}

func (a *Adapter) Provider() string { return "lemonsqueezy" }

// Verify checks the X-Signature HMAC Lemon Squeezy signs payloads with.
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

type lemonEvent struct {
	Meta struct {
		EventName  string            `json:"event_name"`
		CustomData map[string]string `json:"custom_data"`
	} `json:"meta"`
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			Identifier  string    `json:"identifier"`
			OrderNumber int64     `json:"order_number"`
			Status      string    `json:"status"`
			Total       int64     `json:"total"`
			Currency    string    `json:"currency"`
			CreatedAt   time.Time `json:"created_at"`
		} `json:"attributes"`
	} `json:"data"`
}

func (a *Adapter) Parse(_ context.Context, payload []byte) (*paymentdomain.PaymentEvent, error) {
	var event lemonEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.Data.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	// our order reference travels in meta.custom_data
	providerOrderID := strings.TrimSpace(event.Meta.CustomData["order_reference"])
	if providerOrderID == "" {
		providerOrderID = strings.TrimSpace(event.Data.Attributes.Identifier)
	}
	if providerOrderID == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	eventType := ""
	switch strings.ToLower(strings.TrimSpace(event.Meta.EventName)) {
	case "order_created":
		if strings.EqualFold(event.Data.Attributes.Status, "paid") {
			eventType = paymentdomain.EventTypePaymentSucceeded
		} else {
			eventType = paymentdomain.EventTypePaymentFailed
		}
	case "order_refunded":
		eventType = paymentdomain.EventTypeRefunded
	default:
		return nil, paymentdomain.ErrEventIgnored
	}

	occurredAt := event.Data.Attributes.CreatedAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	return &paymentdomain.PaymentEvent{
		Provider:        a.Provider(),
		ProviderEventID: event.Meta.EventName + ":" + event.Data.ID,
		ProviderOrderID: providerOrderID,
		TransactionID:   event.Data.ID,
		Type:            eventType,
		Amount:          event.Data.Attributes.Total,
		Currency:        strings.ToUpper(strings.TrimSpace(event.Data.Attributes.Currency)),
		OccurredAt:      occurredAt.UTC(),
		RawPayload:      payload,
	}, nil
}
