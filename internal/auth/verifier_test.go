package auth_test

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validClaims() jwt.Claims {
	return jwt.Claims{
		Issuer:   testIssuer,
		Subject:  "subject-1",
		Audience: jwt.Audience{testClientID},
		IssuedAt: jwt.NewNumericDate(time.Now()),
		Expiry:   jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
}

func atHash(accessToken string) string {
	sum := sha256.Sum256([]byte(accessToken))
	return base64.RawURLEncoding.EncodeToString(sum[:16])
}

func TestIDTokenVerifier_Verify(t *testing.T) {
	tests := []struct {
		name        string
		claims      func() jwt.Claims
		extra       map[string]any
		accessToken string
		wantSubject string
		assertErr   assert.ErrorAssertionFunc
	}{
		{
			name:        "Valid token",
			claims:      validClaims,
			extra:       map[string]any{"email": "one@example.com"},
			wantSubject: "subject-1",
			assertErr:   assert.NoError,
		},
		{
			name: "Short issuer form is accepted",
			claims: func() jwt.Claims {
				c := validClaims()
				c.Issuer = "accounts.google.com"
				return c
			},
			wantSubject: "subject-1",
			assertErr:   assert.NoError,
		},
		{
			name: "Wrong audience",
			claims: func() jwt.Claims {
				c := validClaims()
				c.Audience = jwt.Audience{"other-client"}
				return c
			},
			assertErr: assert.Error,
		},
		{
			name: "Unknown issuer",
			claims: func() jwt.Claims {
				c := validClaims()
				c.Issuer = "https://evil.example.com"
				return c
			},
			assertErr: assert.Error,
		},
		{
			name: "Expired",
			claims: func() jwt.Claims {
				c := validClaims()
				c.Expiry = jwt.NewNumericDate(time.Now().Add(-time.Hour))
				return c
			},
			assertErr: assert.Error,
		},
		{
			name: "Missing subject",
			claims: func() jwt.Claims {
				c := validClaims()
				c.Subject = ""
				return c
			},
			assertErr: assert.Error,
		},
		{
			name:        "Matching at_hash",
			claims:      validClaims,
			extra:       map[string]any{"at_hash": atHash("access-token")},
			accessToken: "access-token",
			wantSubject: "subject-1",
			assertErr:   assert.NoError,
		},
		{
			name:        "Mismatching at_hash",
			claims:      validClaims,
			extra:       map[string]any{"at_hash": atHash("another-token")},
			accessToken: "access-token",
			assertErr:   assert.Error,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newFakeProvider(t)
			extra := tt.extra
			if extra == nil {
				extra = map[string]any{}
			}

			got, err := p.verifier().Verify(t.Context(), p.sign(tt.claims(), extra), tt.accessToken)
			if !tt.assertErr(t, err) || err != nil {
				return
			}

			assert.Equal(t, tt.wantSubject, got.Subject)
			if email, ok := tt.extra["email"]; ok {
				assert.Equal(t, email, got.Email)
			}
		})
	}
}

func TestIDTokenVerifier_Garbage(t *testing.T) {
	p := newFakeProvider(t)

	_, err := p.verifier().Verify(t.Context(), "not-a-jwt", "")
	assert.Error(t, err)
	assert.Zero(t, p.jwksCalls.Load())
}

func TestIDTokenVerifier_ForeignKey(t *testing.T) {
	p := newFakeProvider(t)
	other := newFakeProvider(t)

	// same kid, different key
	_, err := p.verifier().Verify(t.Context(), other.sign(validClaims(), map[string]any{}), "")
	assert.Error(t, err)
}

func TestIDTokenVerifier_CachesKeySet(t *testing.T) {
	p := newFakeProvider(t)
	v := p.verifier()

	for range 3 {
		_, err := v.Verify(t.Context(), p.sign(validClaims(), map[string]any{}), "")
		require.NoError(t, err)
	}

	assert.Equal(t, int32(1), p.jwksCalls.Load())
}
