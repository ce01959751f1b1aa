// Package verify authenticates inbound deliveries against a pre-shared secret.
package verify

import (
	"crypto/subtle"
	"strings"
)

// Verifier compares supplied tokens with a shared secret in constant time.
type Verifier struct {
	secret []byte
}

// New creates a Verifier for secret. A Verifier with an empty secret rejects
// every token.
func New(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify reports whether token matches the secret. payload is the raw,
// undecoded request body and is not inspected by token verification.
func (v *Verifier) Verify(_ []byte, token string) bool {
	return v.Token(token)
}

// Token reports whether token matches the secret.
func (v *Verifier) Token(token string) bool {
	if len(v.secret) == 0 {
		return false
	}
	return equal(v.secret, []byte(token), nil)
}

// equal compares a and b without stopping at the first differing byte.
// Lengths are checked first; a length mismatch returns immediately. step, if
// non-nil, is called once per compared byte.
func equal(a, b []byte, step func(i int)) bool {
	if len(a) != len(b) {
		return false
	}
	var diff byte
	for i := range a {
		if step != nil {
			step(i)
		}
		diff |= a[i] ^ b[i]
	}
	return subtle.ConstantTimeByteEq(diff, 0) == 1
}

// Bearer extracts the token from an "Authorization: Bearer <token>" header.
func Bearer(header string) (string, bool) {
	const scheme = "Bearer "
	if len(header) < len(scheme) || !strings.EqualFold(header[:len(scheme)], scheme) {
		return "", false
	}
	token := strings.TrimSpace(header[len(scheme):])
	return token, token != ""
}
