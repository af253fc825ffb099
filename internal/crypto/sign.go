// Package crypto provides request signing and encrypted storage for
// exchange API secrets.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// SignHex computes HMAC-SHA256 of payload with the given secret and returns
// it hex-encoded, the signature format both Binance and Bybit expect on
// authenticated REST requests.
func SignHex(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// Redact returns a representation of a credential safe for logging.
func Redact(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return fmt.Sprintf("%s****", s[:4])
}
