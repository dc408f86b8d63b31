package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// VerifySignature checks the success-callback signature the gateway attaches
// to a completed payment: HMAC-SHA256 over "<gatewayOrderID>|<paymentID>"
// keyed with the gateway secret, hex-encoded. Comparison is constant-time.
func (c *Client) VerifySignature(gatewayOrderID, paymentID, signature string) bool {
	return verifySignature(c.cfg.KeySecret, gatewayOrderID, paymentID, signature)
}

func verifySignature(secret, gatewayOrderID, paymentID, signature string) bool {
	if gatewayOrderID == "" || paymentID == "" || signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(gatewayOrderID + "|" + paymentID))
	expected := mac.Sum(nil)

	provided, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, provided)
}
