package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/example/bakery-orders/internal/apperr"
)

// Sign returns hex(HMAC-SHA256(secret, gatewayOrderID + "|" + paymentID)).
func Sign(secret, gatewayOrderID, paymentID string) string {
	return SignPayload(secret, []byte(gatewayOrderID+"|"+paymentID))
}

func SignPayload(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares in constant time.
func VerifySignature(secret, gatewayOrderID, paymentID, signature string) error {
	return VerifyPayload(secret, []byte(gatewayOrderID+"|"+paymentID), signature)
}

func VerifyPayload(secret string, payload []byte, signature string) error {
	if secret == "" {
		return fmt.Errorf("%w: no secret configured", apperr.ErrGatewayUnavailable)
	}
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(got) == 0 {
		return fmt.Errorf("%w: malformed signature", apperr.ErrSignatureInvalid)
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	if !hmac.Equal(mac.Sum(nil), got) {
		return apperr.ErrSignatureInvalid
	}
	return nil
}
