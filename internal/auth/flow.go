package auth

import (
	"context"
	"fmt"

	slogctx "github.com/veqryn/slog-context"
)

type FlowState int

const (
	FlowUnauthenticated FlowState = iota
	FlowPendingAuthorization
	FlowAuthenticated
)

func (s FlowState) String() string {
	switch s {
	case FlowPendingAuthorization:
		return "PENDING_AUTHORIZATION"
	case FlowAuthenticated:
		return "AUTHENTICATED"
	default:
		return "UNAUTHENTICATED"
	}
}

// Status derives where the session is in the sign-in flow. A held credential
// wins over a pending attempt.
func (e *Engine) Status(ctx context.Context, sid string) (FlowState, error) {
	s, err := e.bridge.Load(ctx, sid)
	if err != nil {
		return FlowUnauthenticated, err
	}

	switch {
	case s.Credential != nil:
		return FlowAuthenticated, nil
	case s.Pending():
		return FlowPendingAuthorization, nil
	default:
		return FlowUnauthenticated, nil
	}
}

type Route int

const (
	RouteDiscovery Route = iota
	RouteAuthorize
)

func (r Route) String() string {
	if r == RouteAuthorize {
		return "authorization"
	}

	return "addon-discovery"
}

// Discover decides where the add-on entry point sends the user. The login
// hint of the request, when present, replaces the session's one. A session
// without a credential silently picks up a stored one for the hint; with
// nothing to pick up the user has to sign in.
func (e *Engine) Discover(ctx context.Context, sid, loginHint string, hintPresent bool) (Route, error) {
	hint, err := e.bridge.ResolveLoginHint(ctx, sid, loginHint, hintPresent)
	if err != nil {
		return RouteAuthorize, fmt.Errorf("resolving login hint: %w", err)
	}

	s, err := e.bridge.Load(ctx, sid)
	if err != nil {
		return RouteAuthorize, err
	}

	stored, found, err := e.ResolveExisting(ctx, hint)
	if err != nil {
		return RouteAuthorize, err
	}

	if s.Credential == nil && !found {
		return RouteAuthorize, nil
	}

	if s.Credential != nil && !found && hint != "" {
		// a known user whose durable credential is gone has to grant again
		_, known, err := e.users.Get(ctx, hint)
		if err != nil {
			return RouteAuthorize, fmt.Errorf("loading stored user: %w", err)
		}
		if known {
			return RouteAuthorize, nil
		}
	}

	if found {
		if err := e.bridge.SetCredential(ctx, sid, stored); err != nil {
			return RouteAuthorize, fmt.Errorf("storing credential in session: %w", err)
		}
		slogctx.Debug(ctx, "Session credential resolved from store", "subject", stored.SubjectID)
	}

	return RouteDiscovery, nil
}
