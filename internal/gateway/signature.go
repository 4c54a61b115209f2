package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Webhook signatures use the scheme "t=<unix>,v1=<hex hmac-sha256>" where the
// MAC covers "<unix>.<raw body>". Signatures older than the tolerance are
// rejected to block replay of captured payloads.
const signatureTolerance = 5 * time.Minute

func signPayload(secret []byte, timestamp int64, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureHeader produces the header value for a payload, used by the
// simulated processor and by tests.
func SignatureHeader(secret []byte, timestamp int64, payload []byte) string {
	return fmt.Sprintf("t=%d,v1=%s", timestamp, signPayload(secret, timestamp, payload))
}

func verifySignature(secret []byte, payload []byte, header string, now time.Time) error {
	var ts int64
	var sig string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			parsed, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return &SignatureError{Reason: "malformed timestamp"}
			}
			ts = parsed
		case "v1":
			sig = v
		}
	}
	if ts == 0 || sig == "" {
		return &SignatureError{Reason: "missing signature components"}
	}

	age := now.Sub(time.Unix(ts, 0))
	if age > signatureTolerance || age < -signatureTolerance {
		return &SignatureError{Reason: "timestamp outside tolerance"}
	}

	expected := signPayload(secret, ts, payload)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return &SignatureError{Reason: "signature mismatch"}
	}
	return nil
}
