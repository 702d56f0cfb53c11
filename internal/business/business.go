package business

import (
	"context"
	"fmt"
	"net/http"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/valkey-io/valkey-go"
	"go.opentelemetry.io/otel"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	otlpaudit "github.com/openkcm/common-sdk/pkg/otlp/audit"
	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/addon-auth/internal/addon"
	"github.com/openkcm/addon-auth/internal/attachment"
	attachmentsql "github.com/openkcm/addon-auth/internal/attachment/sql"
	"github.com/openkcm/addon-auth/internal/auth"
	"github.com/openkcm/addon-auth/internal/business/server"
	"github.com/openkcm/addon-auth/internal/config"
	credentialsql "github.com/openkcm/addon-auth/internal/credential/sql"
	"github.com/openkcm/addon-auth/internal/session"
	sessionvalkey "github.com/openkcm/addon-auth/internal/session/valkey"
	usersql "github.com/openkcm/addon-auth/internal/user/sql"
)

// Main wires the add-on and serves it until ctx is done.
func Main(ctx context.Context, cfg *config.Config) error {
	svc, closeFn, err := initServices(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialising the add-on services: %w", err)
	}

	defer closeFn()

	return server.StartHTTPServer(ctx, cfg, svc)
}

func initServices(ctx context.Context, cfg *config.Config) (_ server.Services, closeFn func(), _ error) {
	oauthClient, err := config.LoadClientSecrets(cfg.OAuth.ClientSecret, cfg.OAuth.Scopes...)
	if err != nil {
		return server.Services{}, nil, err
	}

	apiKey, err := loadOptionalSourceRef(cfg.Classroom.APIKey)
	if err != nil {
		return server.Services{}, nil, fmt.Errorf("loading classroom api key: %w", err)
	}

	db, err := newPool(ctx, cfg.Database)
	if err != nil {
		return server.Services{}, nil, err
	}

	valkeyClient, err := newValkeyClient(cfg.ValKey)
	if err != nil {
		db.Close()
		return server.Services{}, nil, err
	}

	closeFn = func() {
		valkeyClient.Close()
		db.Close()
	}

	auditLogger, err := otlpaudit.NewLogger(&cfg.Audit)
	if err != nil {
		closeFn()
		return server.Services{}, nil, fmt.Errorf("creating audit logger: %w", err)
	}

	httpClient := http.DefaultClient

	bridge := session.NewBridge(sessionvalkey.NewRepository(valkeyClient, cfg.ValKey.Prefix, cfg.Session.Duration))
	creds := credentialsql.NewRepository(db)

	verifier := auth.NewIDTokenVerifier(auth.VerifierConfig{
		ClientID: oauthClient.ClientID,
		JWKSURL:  cfg.OAuth.JWKSURL,
		Issuers:  cfg.OAuth.Issuers,
		CacheTTL: cfg.OAuth.JWKSCacheTTL,
	}, httpClient)

	engine, err := auth.NewEngine(
		engineConfig(cfg.OAuth, oauthClient),
		bridge,
		creds,
		usersql.NewRepository(db),
		verifier,
		auditLogger,
		httpClient,
	)
	if err != nil {
		closeFn()
		return server.Services{}, nil, fmt.Errorf("creating auth engine: %w", err)
	}

	caller, err := addon.NewCaller(
		addon.Config{BaseURL: cfg.Classroom.BaseURL, APIKey: apiKey},
		bridge,
		creds,
		engine,
		httpClient,
		otel.Meter("addon-auth/"+cfg.Application.Name),
	)
	if err != nil {
		closeFn()
		return server.Services{}, nil, fmt.Errorf("creating add-on caller: %w", err)
	}

	slogctx.Info(ctx, "Add-on services initialised", "client_id", oauthClient.ClientID, "classroom", cfg.Classroom.BaseURL)

	return server.Services{
		Flow:        engine,
		Attachments: attachment.NewService(caller, attachmentsql.NewRepository(db), cfg.Classroom.AttachmentViewURL),
		Sessions:    bridge,
	}, closeFn, nil
}

// engineConfig merges the configured endpoints with the client secret
// document. Configured values win, then the document, then Google's endpoints.
func engineConfig(cfg config.OAuth, client *oauth2.Config) auth.Config {
	return auth.Config{
		ClientID:     client.ClientID,
		ClientSecret: client.ClientSecret,
		RedirectURL:  firstNonEmpty(cfg.RedirectURL, client.RedirectURL),
		AuthURL:      firstNonEmpty(cfg.AuthURL, client.Endpoint.AuthURL, google.Endpoint.AuthURL),
		TokenURL:     firstNonEmpty(cfg.TokenURL, client.Endpoint.TokenURL, google.Endpoint.TokenURL),
		RevokeURL:    cfg.RevokeURL,
		Scopes:       client.Scopes,
	}
}

func newPool(ctx context.Context, cfg config.Database) (*pgxpool.Pool, error) {
	connStr, err := config.MakeConnStr(cfg)
	if err != nil {
		return nil, fmt.Errorf("making dsn from config: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing pgxpool config: %w", err)
	}
	poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()

	db, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("initialising pgxpool connection: %w", err)
	}

	return db, nil
}

func newValkeyClient(cfg config.ValKey) (valkey.Client, error) {
	host, err := commoncfg.LoadValueFromSourceRef(cfg.Host)
	if err != nil {
		return nil, fmt.Errorf("loading valkey host: %w", err)
	}

	username, err := loadOptionalSourceRef(cfg.User)
	if err != nil {
		return nil, fmt.Errorf("loading valkey username: %w", err)
	}

	password, err := loadOptionalSourceRef(cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("loading valkey password: %w", err)
	}

	opts := valkey.ClientOption{
		InitAddress: []string{string(host)},
		Username:    username,
		Password:    password,
	}

	if cfg.MTLS != nil {
		tlsConfig, err := commoncfg.LoadMTLSConfig(cfg.MTLS)
		if err != nil {
			return nil, fmt.Errorf("loading valkey mTLS config: %w", err)
		}

		opts.TLSConfig = tlsConfig
	}

	client, err := valkey.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("creating a new valkey client: %w", err)
	}

	return client, nil
}

// loadOptionalSourceRef resolves ref, treating an unset reference as empty.
func loadOptionalSourceRef(ref commoncfg.SourceRef) (string, error) {
	if ref.Source == "" {
		return "", nil
	}

	v, err := commoncfg.LoadValueFromSourceRef(ref)
	if err != nil {
		return "", err
	}

	return string(v), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}
