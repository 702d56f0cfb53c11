// Package auth runs the OAuth authorization code flow of the add-on: it binds
// each attempt to a state nonce held in the browser session, exchanges the
// code, verifies the ID token and keeps the resulting credential in the
// session and in the durable store under the verified subject.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	otlpaudit "github.com/openkcm/common-sdk/pkg/otlp/audit"
	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/addon-auth/internal/credential"
	"github.com/openkcm/addon-auth/internal/pkce"
	"github.com/openkcm/addon-auth/internal/serviceerr"
	"github.com/openkcm/addon-auth/internal/session"
	"github.com/openkcm/addon-auth/internal/user"
)

const auditObjectType = "addon auth"

// DefaultScopes are requested on every authorization.
var DefaultScopes = []string{
	"https://www.googleapis.com/auth/userinfo.profile",
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/classroom.addons.teacher",
	"https://www.googleapis.com/auth/classroom.addons.student",
}

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	RevokeURL    string
	Scopes       []string
}

// IdentityVerifier verifies an ID token and returns its subject.
type IdentityVerifier interface {
	Verify(ctx context.Context, rawIDToken, accessToken string) (Identity, error)
}

// Authorization is where to send the browser to sign in.
type Authorization struct {
	URL   string
	State string
}

type Engine struct {
	oauth      *oauth2.Config
	revokeURL  string
	bridge     *session.Bridge
	creds      credential.Repository
	users      user.Repository
	verifier   IdentityVerifier
	nonces     pkce.Source
	audit      *otlpaudit.AuditLogger
	httpClient *http.Client
}

func NewEngine(
	cfg Config,
	bridge *session.Bridge,
	creds credential.Repository,
	users user.Repository,
	verifier IdentityVerifier,
	auditLogger *otlpaudit.AuditLogger,
	httpClient *http.Client,
) (*Engine, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("client id is required")
	}
	if _, err := url.Parse(cfg.RedirectURL); err != nil {
		return nil, fmt.Errorf("parsing redirect URL: %w", err)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Engine{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		revokeURL:  cfg.RevokeURL,
		bridge:     bridge,
		creds:      creds,
		users:      users,
		verifier:   verifier,
		audit:      auditLogger,
		httpClient: httpClient,
	}, nil
}

// BeginAuthorization starts a sign-in attempt for the session. A previous
// pending attempt of the same session is superseded.
func (e *Engine) BeginAuthorization(ctx context.Context, sid, loginHint string) (Authorization, error) {
	state := e.nonces.State()
	challenge := e.nonces.PKCE()

	if err := e.bridge.SetPendingAuthorization(ctx, sid, state, challenge.Verifier); err != nil {
		return Authorization{}, fmt.Errorf("storing pending authorization: %w", err)
	}

	opts := []oauth2.AuthCodeOption{
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("code_challenge", challenge.Challenge),
		oauth2.SetAuthURLParam("code_challenge_method", challenge.Method),
	}
	if loginHint != "" {
		opts = append(opts, oauth2.SetAuthURLParam("login_hint", loginHint))
	}

	slogctx.Debug(ctx, "Authorization started", "login_hint_present", loginHint != "")

	return Authorization{
		URL:   e.oauth.AuthCodeURL(state, opts...),
		State: state,
	}, nil
}

// HandleCallback completes the attempt started by BeginAuthorization. The
// received state is checked before anything is sent to the token endpoint.
func (e *Engine) HandleCallback(ctx context.Context, sid, receivedState, code string) (credential.Credential, error) {
	s, err := e.bridge.Load(ctx, sid)
	if err != nil {
		return credential.Credential{}, err
	}

	metadata, err := otlpaudit.NewEventMetadata(auditObjectType, sid, uuid.NewString())
	if err != nil {
		return credential.Credential{}, fmt.Errorf("creating audit metadata: %w", err)
	}

	if !s.Pending() || subtle.ConstantTimeCompare([]byte(s.PendingNonce), []byte(receivedState)) != 1 {
		slogctx.Warn(ctx, "Callback state does not match the pending authorization")
		e.sendUserLoginFailureAudit(ctx, metadata, sid, "state mismatch")
		return credential.Credential{}, serviceerr.ErrStateMismatch
	}

	// The nonce is single use: it is gone whatever the outcome of the exchange.
	if err := e.bridge.ClearPendingAuthorization(ctx, sid); err != nil {
		return credential.Credential{}, fmt.Errorf("clearing pending authorization: %w", err)
	}

	tok, err := e.oauth.Exchange(e.clientContext(ctx), code, oauth2.VerifierOption(s.PKCEVerifier))
	if err != nil {
		e.sendUserLoginFailureAudit(ctx, metadata, sid, "failed to exchange code for tokens")
		return credential.Credential{}, classifyTokenError("exchanging code for tokens", err)
	}

	slogctx.Info(ctx, "Exchanged the auth code for tokens")

	rawIDToken, _ := tok.Extra("id_token").(string)
	if rawIDToken == "" {
		e.sendUserLoginFailureAudit(ctx, metadata, sid, "missing id token")
		return credential.Credential{}, serviceerr.ErrInvalidIdentityToken
	}

	identity, err := e.verifier.Verify(ctx, rawIDToken, tok.AccessToken)
	if err != nil {
		slogctx.Warn(ctx, "ID token verification failed", "error", err)
		e.sendUserLoginFailureAudit(ctx, metadata, sid, "invalid id token")
		return credential.Credential{}, fmt.Errorf("%w: %w", serviceerr.ErrInvalidIdentityToken, err)
	}

	ctx = slogctx.With(ctx, "subject", identity.Subject)

	// The user goes first: a credential is only stored for a recorded user.
	// A failure after the credential put leaves a durable credential that a
	// later discovery picks up through the login hint.
	if err := e.users.Put(ctx, user.User{ID: identity.Subject, Email: identity.Email}); err != nil {
		e.sendUserLoginFailureAudit(ctx, metadata, sid, "failed to store user")
		return credential.Credential{}, fmt.Errorf("storing user: %w", err)
	}

	cred := credential.FromToken(identity.Subject, tok, nil)
	if err := e.creds.Put(ctx, cred); err != nil {
		e.sendUserLoginFailureAudit(ctx, metadata, sid, "failed to store credential")
		return credential.Credential{}, fmt.Errorf("storing credential: %w", err)
	}

	if err := e.bridge.SetCredential(ctx, sid, cred); err != nil {
		e.sendUserLoginFailureAudit(ctx, metadata, sid, "failed to store credential in session")
		return credential.Credential{}, fmt.Errorf("storing credential in session: %w", err)
	}

	e.sendUserLoginSuccessAudit(ctx, metadata, identity.Subject)
	slogctx.Info(ctx, "User signed in")

	return cred, nil
}

// ResolveExisting looks up a durable credential by login hint, used as the
// subject id. A miss returns found=false.
func (e *Engine) ResolveExisting(ctx context.Context, loginHint string) (credential.Credential, bool, error) {
	if loginHint == "" {
		return credential.Credential{}, false, nil
	}

	cred, found, err := e.creds.Get(ctx, loginHint)
	if err != nil {
		return credential.Credential{}, false, fmt.Errorf("loading stored credential: %w", err)
	}

	return cred, found, nil
}

// Revoke revokes the remote grant of cred. Local state is left alone.
func (e *Engine) Revoke(ctx context.Context, cred credential.Credential) error {
	form := url.Values{"token": {cred.AccessToken}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return serviceerr.RevocationFailed(resp.StatusCode)
	}

	return nil
}

// RevokeSession revokes the session's credential and, only when the provider
// confirmed it, removes the credential from the session and the store.
func (e *Engine) RevokeSession(ctx context.Context, sid string) error {
	s, err := e.bridge.Load(ctx, sid)
	if err != nil {
		return err
	}
	if s.Credential == nil {
		return serviceerr.ErrNotAuthenticated
	}

	if err := e.Revoke(ctx, *s.Credential); err != nil {
		return err
	}

	if err := e.bridge.ClearCredential(ctx, sid); err != nil {
		return fmt.Errorf("clearing session credential: %w", err)
	}

	if s.Credential.SubjectID != "" {
		if err := e.creds.Delete(ctx, s.Credential.SubjectID); err != nil {
			return fmt.Errorf("deleting stored credential: %w", err)
		}
	}

	slogctx.Info(ctx, "Credential revoked", "subject", s.Credential.SubjectID)

	return nil
}

// SignOut forgets the session's credential. The remote grant and the durable
// record are kept.
func (e *Engine) SignOut(ctx context.Context, sid string) error {
	return e.bridge.ClearCredential(ctx, sid)
}

// Refresh returns cred unchanged while it is valid. Otherwise it is renewed
// with its refresh token and written back under its subject.
func (e *Engine) Refresh(ctx context.Context, cred credential.Credential) (credential.Credential, error) {
	if cred.Valid(time.Now()) {
		return cred, nil
	}
	if cred.RefreshToken == "" {
		return credential.Credential{}, serviceerr.ErrNotAuthenticated
	}

	expired := cred.Token()
	expired.Expiry = time.Now().Add(-time.Second)

	tok, err := e.oauth.TokenSource(e.clientContext(ctx), expired).Token()
	if err != nil {
		return credential.Credential{}, classifyTokenError("refreshing token", err)
	}

	refreshed := credential.FromToken(cred.SubjectID, tok, &cred)
	if refreshed.SubjectID != "" {
		if err := e.creds.Put(ctx, refreshed); err != nil {
			return credential.Credential{}, fmt.Errorf("storing refreshed credential: %w", err)
		}
	}

	slogctx.Debug(ctx, "Credential refreshed", "subject", cred.SubjectID)

	return refreshed, nil
}

func (e *Engine) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, e.httpClient)
}

// classifyTokenError marks a rejected grant as InvalidGrant and keeps
// everything else as a wrapped error.
func classifyTokenError(op string, err error) error {
	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) {
		if rErr.ErrorCode == "invalid_grant" {
			return fmt.Errorf("%s: %w: %w", op, serviceerr.ErrInvalidGrant, err)
		}

		status := 0
		if rErr.Response != nil {
			status = rErr.Response.StatusCode
		}

		return fmt.Errorf("%s: %w: %w", op, serviceerr.Upstream(status, rErr.ErrorDescription), err)
	}

	return fmt.Errorf("%s: %w", op, err)
}
