// Package webhook verifies, parses and dispatches payment provider webhooks.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureHeader carries the HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Signature"

const signaturePrefix = "sha256="

// Verifier checks webhook signatures against the shared secret.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Sign returns the header value the provider would send for body.
func (v *Verifier) Sign(body []byte) string {
	return signaturePrefix + hex.EncodeToString(v.mac(body))
}

// Verify reports whether header is a valid signature of body. Both
// "sha256=<hex>" and bare hex are accepted. An unset secret never verifies.
func (v *Verifier) Verify(body []byte, header string) bool {
	if len(v.secret) == 0 {
		return false
	}
	header = strings.TrimSpace(header)
	if len(header) >= len(signaturePrefix) && strings.EqualFold(header[:len(signaturePrefix)], signaturePrefix) {
		header = header[len(signaturePrefix):]
	}
	if header == "" {
		return false
	}
	got, err := hex.DecodeString(header)
	if err != nil {
		return false
	}
	return hmac.Equal(got, v.mac(body))
}

func (v *Verifier) mac(body []byte) []byte {
	m := hmac.New(sha256.New, v.secret)
	m.Write(body)
	return m.Sum(nil)
}
