// Package session bridges a browser session to the server-side state of the
// add-on flow: the pending authorization, the login hint, the session-held
// credential and the host request context.
package session

import (
	"context"
	"fmt"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/addon-auth/internal/credential"
)

// Bridge scopes every operation to one session id. Each mutation is written
// through to the repository before it returns. Concurrent requests of the same
// session are not serialised; the last write wins.
type Bridge struct {
	repo Repository
}

func NewBridge(repo Repository) *Bridge {
	return &Bridge{repo: repo}
}

// Load returns the state of sid, or an empty state when none is stored.
func (b *Bridge) Load(ctx context.Context, sid string) (State, error) {
	s, found, err := b.repo.Load(ctx, sid)
	if err != nil {
		return State{}, fmt.Errorf("loading session: %w", err)
	}
	if !found {
		return State{ID: sid}, nil
	}

	return s, nil
}

func (b *Bridge) SetPendingAuthorization(ctx context.Context, sid, nonce, verifier string) error {
	_, err := b.update(ctx, sid, func(s *State) {
		s.PendingNonce = nonce
		s.PKCEVerifier = verifier
	})

	return err
}

func (b *Bridge) ClearPendingAuthorization(ctx context.Context, sid string) error {
	_, err := b.update(ctx, sid, func(s *State) {
		s.PendingNonce = ""
		s.PKCEVerifier = ""
	})

	return err
}

// ResolveLoginHint applies the login hint policy: a hint supplied with the
// request replaces the stored one, otherwise the stored hint is reused.
func (b *Bridge) ResolveLoginHint(ctx context.Context, sid, hint string, present bool) (string, error) {
	if !present {
		s, err := b.Load(ctx, sid)
		if err != nil {
			return "", err
		}

		return s.LoginHint, nil
	}

	if _, err := b.update(ctx, sid, func(s *State) { s.LoginHint = hint }); err != nil {
		return "", err
	}

	return hint, nil
}

func (b *Bridge) SetCredential(ctx context.Context, sid string, cred credential.Credential) error {
	_, err := b.update(ctx, sid, func(s *State) { s.Credential = &cred })
	return err
}

func (b *Bridge) ClearCredential(ctx context.Context, sid string) error {
	_, err := b.update(ctx, sid, func(s *State) { s.Credential = nil })
	return err
}

// UpdateRequestContext merges the non-empty fields of rc into the session and
// returns the result.
func (b *Bridge) UpdateRequestContext(ctx context.Context, sid string, rc RequestContext) (RequestContext, error) {
	if rc == (RequestContext{}) {
		s, err := b.Load(ctx, sid)
		if err != nil {
			return RequestContext{}, err
		}

		return s.Request, nil
	}

	s, err := b.update(ctx, sid, func(s *State) { s.Request.merge(rc) })
	if err != nil {
		return RequestContext{}, err
	}

	return s.Request, nil
}

// Rotate moves the state of oldSID to newSID and drops oldSID. It is called
// once a user has signed in so an id planted before the sign-in is worthless.
func (b *Bridge) Rotate(ctx context.Context, oldSID, newSID string) error {
	s, err := b.Load(ctx, oldSID)
	if err != nil {
		return err
	}

	s.ID = newSID
	if err := b.repo.Store(ctx, s); err != nil {
		return fmt.Errorf("storing rotated session: %w", err)
	}

	if err := b.repo.Delete(ctx, oldSID); err != nil {
		return fmt.Errorf("deleting previous session: %w", err)
	}

	slogctx.Debug(ctx, "Session id rotated")

	return nil
}

// Destroy drops the whole session.
func (b *Bridge) Destroy(ctx context.Context, sid string) error {
	if err := b.repo.Delete(ctx, sid); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}

	slogctx.Debug(ctx, "Session destroyed")

	return nil
}

func (b *Bridge) update(ctx context.Context, sid string, mutate func(*State)) (State, error) {
	s, err := b.Load(ctx, sid)
	if err != nil {
		return State{}, err
	}

	mutate(&s)

	if err := b.repo.Store(ctx, s); err != nil {
		return State{}, fmt.Errorf("storing session: %w", err)
	}

	return s, nil
}
