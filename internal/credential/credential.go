// Package credential holds the OAuth credential of a signed-in subject and
// the durable store keyed by that subject.
package credential

import (
	"context"
	"time"

	"golang.org/x/oauth2"
)

// ExpiryLeeway is how close to its expiry a credential is treated as expired.
const ExpiryLeeway = time.Minute

type Credential struct {
	SubjectID    string    `json:"subjectId,omitempty"`
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	TokenType    string    `json:"tokenType,omitempty"`
	Expiry       time.Time `json:"expiry,omitzero"`
}

// Repository is the durable credential store. A miss is reported with
// found=false, not with an error. Put replaces the whole record.
type Repository interface {
	Get(ctx context.Context, subjectID string) (Credential, bool, error)
	Put(ctx context.Context, cred Credential) error
	Delete(ctx context.Context, subjectID string) error
}

// Valid reports whether the access token can be attached to a call at now.
// A zero expiry means the provider did not announce one.
func (c Credential) Valid(now time.Time) bool {
	if c.AccessToken == "" {
		return false
	}
	if c.Expiry.IsZero() {
		return true
	}

	return now.Add(ExpiryLeeway).Before(c.Expiry)
}

func (c Credential) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    c.TokenType,
		Expiry:       c.Expiry,
	}
}

// FromToken builds the credential of subjectID from a token endpoint answer.
// A refreshed token without a refresh token keeps the previous one.
func FromToken(subjectID string, tok *oauth2.Token, previous *Credential) Credential {
	c := Credential{
		SubjectID:    subjectID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
	}
	if c.RefreshToken == "" && previous != nil {
		c.RefreshToken = previous.RefreshToken
	}

	return c
}
