// Package gateway is the boundary to the online payment processor.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

type Order struct {
	ID          string `json:"id"`
	AmountMinor int64  `json:"amount"`
	Currency    string `json:"currency"`
	Receipt     string `json:"receipt"`
}

// Gateway is everything the order core needs from the processor. Calls
// that leave the process are bounded and fail with
// orders.ErrGatewayUnavailable when the processor cannot be reached.
type Gateway interface {
	CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string, notes map[string]string) (Order, error)
	VerifyPayment(gatewayOrderID, gatewayPaymentID, signature string) bool
	VerifyWebhook(body []byte, signature string) bool
	Refund(ctx context.Context, gatewayPaymentID string, amountMinor int64) (string, error)
	// KeyID is the public key handed to the checkout client.
	KeyID() string
}

const (
	ProviderRazorpay = "razorpay"
	ProviderFake     = "fake"
)

type Settings struct {
	Provider      string
	KeyID         string
	KeySecret     string
	WebhookSecret string
	Timeout       time.Duration
}

// Open builds the adapter named by Provider. The fake is only ever chosen
// by name, and no adapter starts without both signing secrets.
func Open(log *slog.Logger, s Settings) (Gateway, error) {
	if s.KeySecret == "" || s.WebhookSecret == "" {
		return nil, errors.New("gateway: RAZORPAY_SECRET_KEY and RAZORPAY_WEBHOOK_SECRET are required")
	}
	switch s.Provider {
	case ProviderRazorpay:
		if s.KeyID == "" {
			return nil, errors.New("gateway: RAZORPAY_API_KEY is required")
		}
		return NewRazorpay(log, s.KeyID, s.KeySecret, s.WebhookSecret, s.Timeout), nil
	case ProviderFake:
		log.Warn("payment gateway is the in-process fake; no money moves")
		return NewFake(s.KeySecret, s.WebhookSecret), nil
	}
	return nil, fmt.Errorf("gateway: unknown provider %q", s.Provider)
}
