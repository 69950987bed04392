package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Signer checks the two HMAC-SHA256 signatures the processor issues: the
// checkout signature over "order_id|payment_id" keyed by the API secret,
// and the webhook signature over the raw body keyed by the webhook secret.
type Signer struct {
	KeySecret     string
	WebhookSecret string
}

func generateSignature(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

func verify(payload []byte, signature, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected := generateSignature(payload, secret)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

func paymentPayload(gatewayOrderID, gatewayPaymentID string) []byte {
	return []byte(gatewayOrderID + "|" + gatewayPaymentID)
}

func (s Signer) VerifyPayment(gatewayOrderID, gatewayPaymentID, signature string) bool {
	return verify(paymentPayload(gatewayOrderID, gatewayPaymentID), signature, s.KeySecret)
}

func (s Signer) VerifyWebhook(body []byte, signature string) bool {
	return verify(body, signature, s.WebhookSecret)
}

// SignPayment and SignWebhook produce what the processor would send.
func (s Signer) SignPayment(gatewayOrderID, gatewayPaymentID string) string {
	return generateSignature(paymentPayload(gatewayOrderID, gatewayPaymentID), s.KeySecret)
}

func (s Signer) SignWebhook(body []byte) string {
	return generateSignature(body, s.WebhookSecret)
}
