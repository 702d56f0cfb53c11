// Package addon makes calls to the Classroom API on behalf of the user of a
// browser session.
package addon

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/oauth2"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/addon-auth/internal/classroom"
	"github.com/openkcm/addon-auth/internal/credential"
	"github.com/openkcm/addon-auth/internal/serviceerr"
	"github.com/openkcm/addon-auth/internal/session"
)

// Refresher renews a credential that is about to expire.
type Refresher interface {
	Refresh(ctx context.Context, cred credential.Credential) (credential.Credential, error)
}

// Operation is one call against the API. It runs with a client that
// already carries the user's access token.
type Operation func(ctx context.Context, api *classroom.Client) error

type Config struct {
	BaseURL string
	APIKey  string
}

// Caller resolves the user's credential for a session and runs operations
// with it. Nothing is retried.
type Caller struct {
	bridge     *session.Bridge
	creds      credential.Repository
	refresher  Refresher
	httpClient *http.Client
	cfg        Config

	calls metric.Int64Counter
}

func NewCaller(
	cfg Config,
	bridge *session.Bridge,
	creds credential.Repository,
	refresher Refresher,
	httpClient *http.Client,
	meter metric.Meter,
) (*Caller, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if meter == nil {
		meter = otel.Meter("addon-auth/addon")
	}

	calls, err := meter.Int64Counter(
		"addon.call_count",
		metric.WithDescription("Outbound add-on API calls by outcome"),
		metric.WithUnit("call"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating addon.call_count meter: %w", err)
	}

	return &Caller{
		bridge:     bridge,
		creds:      creds,
		refresher:  refresher,
		httpClient: httpClient,
		cfg:        cfg,
		calls:      calls,
	}, nil
}

// Call runs op for the user of session sid. The credential is taken from the
// session or, failing that, from the store under the session's login hint.
// Without either it fails with NotAuthenticated before any network call.
func (c *Caller) Call(ctx context.Context, sid string, op Operation) error {
	cred, err := c.resolve(ctx, sid)
	if err != nil {
		c.record(ctx, err)
		return err
	}

	fresh, err := c.refresher.Refresh(ctx, cred)
	if err != nil {
		c.record(ctx, err)
		return err
	}
	if fresh.AccessToken != cred.AccessToken {
		if err := c.bridge.SetCredential(ctx, sid, fresh); err != nil {
			return fmt.Errorf("storing refreshed credential in session: %w", err)
		}
	}

	baseCtx := context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	authorized := oauth2.NewClient(baseCtx, oauth2.StaticTokenSource(fresh.Token()))

	api, err := classroom.NewClient(ctx, authorized, c.cfg.BaseURL, c.cfg.APIKey)
	if err != nil {
		return err
	}

	err = Classify(op(ctx, api))
	c.record(ctx, err)

	return err
}

func (c *Caller) resolve(ctx context.Context, sid string) (credential.Credential, error) {
	s, err := c.bridge.Load(ctx, sid)
	if err != nil {
		return credential.Credential{}, err
	}

	if s.Credential != nil {
		return *s.Credential, nil
	}

	if s.LoginHint == "" {
		return credential.Credential{}, serviceerr.ErrNotAuthenticated
	}

	cred, found, err := c.creds.Get(ctx, s.LoginHint)
	if err != nil {
		return credential.Credential{}, fmt.Errorf("loading stored credential: %w", err)
	}
	if !found {
		return credential.Credential{}, serviceerr.ErrNotAuthenticated
	}

	if err := c.bridge.SetCredential(ctx, sid, cred); err != nil {
		return credential.Credential{}, fmt.Errorf("storing credential in session: %w", err)
	}

	slogctx.Debug(ctx, "Credential resolved from store by login hint", "subject", cred.SubjectID)

	return cred, nil
}

func (c *Caller) record(ctx context.Context, err error) {
	outcome := "ok"
	if err != nil {
		var classified *serviceerr.Error
		if errors.As(err, &classified) {
			outcome = string(classified.Err)
		} else {
			outcome = string(serviceerr.CodeUnknown)
		}
	}

	c.calls.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
