package auth_test

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/addon-auth/internal/auth"
	credentialmock "github.com/openkcm/addon-auth/internal/credential/mock"
	"github.com/openkcm/addon-auth/internal/session"
	sessionmock "github.com/openkcm/addon-auth/internal/session/mock"
	usermock "github.com/openkcm/addon-auth/internal/user/mock"
)

const (
	testClientID = "client-id.apps.example.com"
	testIssuer   = "https://accounts.google.com"
	testKeyID    = "key-1"
)

// fakeProvider serves the token, key set and revoke endpoints and counts
// the calls each of them receives.
type fakeProvider struct {
	t      *testing.T
	server *httptest.Server
	key    *rsa.PrivateKey

	tokenCalls  atomic.Int32
	jwksCalls   atomic.Int32
	revokeCalls atomic.Int32

	// Subject and Email go into the issued ID token.
	Subject string
	Email   string
	// NoIDToken drops the id_token from the token response.
	NoIDToken bool
	// IDTokenAudience overrides the audience of the issued ID token.
	IDTokenAudience string
	// TokenError answers the token endpoint with this OAuth error code.
	TokenError string
	// RevokeStatus is the status of the revoke endpoint.
	RevokeStatus int

	lastForm map[string]string
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	p := &fakeProvider{
		t:            t,
		key:          key,
		Subject:      "subject-1",
		Email:        "one@example.com",
		RevokeStatus: http.StatusOK,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/token", p.handleToken)
	mux.HandleFunc("/jwks", p.handleJWKS)
	mux.HandleFunc("/revoke", p.handleRevoke)
	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)

	return p
}

func (p *fakeProvider) handleToken(w http.ResponseWriter, r *http.Request) {
	p.tokenCalls.Add(1)
	_ = r.ParseForm()
	p.lastForm = map[string]string{}
	for k := range r.PostForm {
		p.lastForm[k] = r.PostForm.Get(k)
	}

	w.Header().Set("Content-Type", "application/json")
	if p.TokenError != "" {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": p.TokenError})
		return
	}

	resp := map[string]any{
		"access_token": "access-" + r.PostForm.Get("grant_type"),
		"token_type":   "Bearer",
		"expires_in":   3600,
	}
	if r.PostForm.Get("grant_type") == "authorization_code" {
		resp["refresh_token"] = "refresh-token"
		if !p.NoIDToken {
			resp["id_token"] = p.idToken()
		}
	}

	_ = json.NewEncoder(w).Encode(resp)
}

func (p *fakeProvider) handleJWKS(w http.ResponseWriter, _ *http.Request) {
	p.jwksCalls.Add(1)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
		Key:       &p.key.PublicKey,
		KeyID:     testKeyID,
		Algorithm: string(jose.RS256),
		Use:       "sig",
	}}})
}

func (p *fakeProvider) handleRevoke(w http.ResponseWriter, r *http.Request) {
	p.revokeCalls.Add(1)
	_ = r.ParseForm()
	w.WriteHeader(p.RevokeStatus)
}

func (p *fakeProvider) idToken() string {
	aud := p.IDTokenAudience
	if aud == "" {
		aud = testClientID
	}

	return p.sign(jwt.Claims{
		Issuer:   testIssuer,
		Subject:  p.Subject,
		Audience: jwt.Audience{aud},
		IssuedAt: jwt.NewNumericDate(time.Now()),
		Expiry:   jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}, map[string]any{"email": p.Email})
}

func (p *fakeProvider) sign(claims jwt.Claims, extra map[string]any) string {
	p.t.Helper()

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: jose.JSONWebKey{Key: p.key, KeyID: testKeyID}},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	require.NoError(p.t, err)

	raw, err := jwt.Signed(signer).Claims(claims).Claims(extra).Serialize()
	require.NoError(p.t, err)

	return raw
}

func (p *fakeProvider) verifier() *auth.IDTokenVerifier {
	return auth.NewIDTokenVerifier(auth.VerifierConfig{
		ClientID: testClientID,
		JWKSURL:  p.server.URL + "/jwks",
		Issuers:  []string{"accounts.google.com", testIssuer},
	}, p.server.Client())
}

type engineFixture struct {
	engine   *auth.Engine
	provider *fakeProvider
	sessions *sessionmock.Repository
	bridge   *session.Bridge
	creds    *credentialmock.Repository
	users    *usermock.Repository
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	p := newFakeProvider(t)
	sessions := sessionmock.NewInMemRepository(nil, nil, nil)
	bridge := session.NewBridge(sessions)
	creds := credentialmock.NewInMemRepository(nil, nil, nil)
	users := usermock.NewInMemRepository(nil, nil)

	engine, err := auth.NewEngine(auth.Config{
		ClientID:     testClientID,
		ClientSecret: "client-secret",
		RedirectURL:  "https://localhost:5000/callback",
		AuthURL:      "https://accounts.example.com/o/oauth2/auth",
		TokenURL:     p.server.URL + "/token",
		RevokeURL:    p.server.URL + "/revoke",
	}, bridge, creds, users, p.verifier(), nil, p.server.Client())
	require.NoError(t, err)

	return &engineFixture{
		engine:   engine,
		provider: p,
		sessions: sessions,
		bridge:   bridge,
		creds:    creds,
		users:    users,
	}
}
