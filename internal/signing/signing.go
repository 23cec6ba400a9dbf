// Package signing produces and checks HMAC-SHA256 proofs over webhook
// payloads. Sender and receiver must agree on the exact bytes signed, so the
// payload is reduced to a canonical JSON form (sorted keys, no insignificant
// whitespace) before hashing.
package signing

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/paycrypt-tech/webhook-dispatch/internal/domain"
)

// Sign computes the hex HMAC-SHA256 of "{timestamp}.{canonicalJSON(payload)}"
// keyed with secret.
func Sign(secret, timestamp string, payload []byte) (string, error) {
	if secret == "" {
		return "", domain.ErrMissingSecret
	}

	canonical, err := canonicalize(payload)
	if err != nil {
		return "", fmt.Errorf("Sign: canonicalize payload: %w", err)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(canonical)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify recomputes the signature and compares in constant time. It returns
// false on any failure without distinguishing the reason.
func Verify(secret, timestamp string, payload []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected, err := Sign(secret, timestamp, payload)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(signature))
}

// canonicalize round-trips payload through an untyped decode so that key
// order and whitespace from the producer do not affect the digest. UseNumber
// keeps numeric literals byte-identical instead of going through float64.
func canonicalize(payload []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}
