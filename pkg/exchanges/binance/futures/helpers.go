package futures

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// sign computes the lowercase hex HMAC-SHA-256 of payload with the API
// secret. The payload must be byte-identical to the transmitted query
// string; the exchange recomputes the hash over the same bytes.
func sign(payload, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}

// formatFloat renders a number the shortest way that round-trips, so the
// signed string and the transmitted string agree.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
