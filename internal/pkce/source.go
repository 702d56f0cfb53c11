// Package pkce draws the random values of an authorization attempt: the
// state nonce, the PKCE verifier and challenge, and browser session ids.
package pkce

import (
	"crypto/rand"
	"encoding/base64"

	"golang.org/x/oauth2"
)

const MethodS256 = "S256"

// stateBytes is the entropy behind a state nonce (256 bits).
const stateBytes = 32

type PKCE struct {
	Verifier  string
	Challenge string
	Method    string
}

// Source reads from crypto/rand. The zero value is ready to use.
type Source struct{}

func (Source) PKCE() PKCE {
	verifier := oauth2.GenerateVerifier()

	return PKCE{
		Verifier:  verifier,
		Challenge: oauth2.S256ChallengeFromVerifier(verifier),
		Method:    MethodS256,
	}
}

// State returns an anti-forgery nonce for one authorization attempt.
// No uniqueness check is done.
func (Source) State() string {
	b := make([]byte, stateBytes)
	_, _ = rand.Read(b)

	return base64.RawURLEncoding.EncodeToString(b)
}

// SessionID returns an opaque browser session id (128 bits, base32).
func (Source) SessionID() string {
	return rand.Text()
}
