package auth

import (
	"context"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"net/http"
	"slices"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/patrickmn/go-cache"

	slogctx "github.com/veqryn/slog-context"
)

const jwksCacheKey = "jwks"

var (
	errNoMatchingKey = errors.New("no matching key in provider key set")
	errIssuer        = errors.New("unexpected issuer")
	errNoSubject     = errors.New("missing subject")
	errAtHash        = errors.New("access token does not match at_hash")
)

// Identity is what a verified ID token says about the signed-in user.
type Identity struct {
	Subject string
	Email   string
}

type VerifierConfig struct {
	ClientID   string
	JWKSURL    string
	Issuers    []string
	Algorithms []jose.SignatureAlgorithm
	CacheTTL   time.Duration
	Leeway     time.Duration
}

// IDTokenVerifier checks ID tokens against the provider's published keys.
type IDTokenVerifier struct {
	cfg        VerifierConfig
	cache      *cache.Cache
	httpClient *http.Client
}

func NewIDTokenVerifier(cfg VerifierConfig, httpClient *http.Client) *IDTokenVerifier {
	if len(cfg.Algorithms) == 0 {
		cfg.Algorithms = []jose.SignatureAlgorithm{jose.RS256}
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	if cfg.Leeway <= 0 {
		cfg.Leeway = jwt.DefaultLeeway
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &IDTokenVerifier{
		cfg:        cfg,
		cache:      cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		httpClient: httpClient,
	}
}

// Verify checks signature, audience, issuer and lifetime of raw and returns
// the identity it carries. When accessToken is given and the token has an
// at_hash claim, the two must match.
func (v *IDTokenVerifier) Verify(ctx context.Context, raw, accessToken string) (Identity, error) {
	token, err := jwt.ParseSigned(raw, v.cfg.Algorithms)
	if err != nil {
		return Identity{}, fmt.Errorf("parsing id token: %w", err)
	}

	var kid string
	if len(token.Headers) > 0 {
		kid = token.Headers[0].KeyID
	}

	keySet, err := v.keySetFor(ctx, kid)
	if err != nil {
		return Identity{}, err
	}

	type extraClaims struct {
		Email  string `json:"email"`
		AtHash string `json:"at_hash,omitempty"`
	}

	var standard jwt.Claims
	var extra extraClaims
	if err := token.Claims(keySet, &standard, &extra); err != nil {
		return Identity{}, fmt.Errorf("verifying id token signature: %w", err)
	}

	if err := standard.ValidateWithLeeway(jwt.Expected{
		AnyAudience: jwt.Audience{v.cfg.ClientID},
		Time:        time.Now(),
	}, v.cfg.Leeway); err != nil {
		return Identity{}, fmt.Errorf("validating id token claims: %w", err)
	}

	if len(v.cfg.Issuers) > 0 && !slices.Contains(v.cfg.Issuers, standard.Issuer) {
		return Identity{}, fmt.Errorf("%w: %q", errIssuer, standard.Issuer)
	}

	if standard.Subject == "" {
		return Identity{}, errNoSubject
	}

	if extra.AtHash != "" && accessToken != "" {
		if err := verifyAtHash(accessToken, extra.AtHash, token.Headers[0].Algorithm); err != nil {
			return Identity{}, err
		}
	}

	return Identity{Subject: standard.Subject, Email: extra.Email}, nil
}

// keySetFor returns the cached key set, fetching it again once when it
// has no key with the given id. Providers rotate their keys.
func (v *IDTokenVerifier) keySetFor(ctx context.Context, kid string) (*jose.JSONWebKeySet, error) {
	if cached, ok := v.cache.Get(jwksCacheKey); ok {
		//nolint:forcetypeassert
		keySet := cached.(*jose.JSONWebKeySet)
		if kid == "" || len(keySet.Key(kid)) > 0 {
			return keySet, nil
		}

		slogctx.Debug(ctx, "Key id not in cached key set, refetching", "kid", kid)
	}

	keySet, err := v.fetchKeySet(ctx)
	if err != nil {
		return nil, err
	}
	v.cache.SetDefault(jwksCacheKey, keySet)

	if kid != "" && len(keySet.Key(kid)) == 0 {
		return nil, fmt.Errorf("%w: kid %q", errNoMatchingKey, kid)
	}

	return keySet, nil
}

func (v *IDTokenVerifier) fetchKeySet(ctx context.Context) (*jose.JSONWebKeySet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.cfg.JWKSURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating a new HTTP request: %w", err)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing an http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching key set failed with status: %d", resp.StatusCode)
	}

	var keySet jose.JSONWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&keySet); err != nil {
		return nil, fmt.Errorf("decoding keyset response: %w", err)
	}

	return &keySet, nil
}

func verifyAtHash(accessToken, atHash, alg string) error {
	var h hash.Hash
	switch alg {
	case "RS256", "ES256", "PS256":
		h = sha256.New()
	case "RS384", "ES384", "PS384":
		h = sha512.New384()
	case "RS512", "ES512", "PS512", "EdDSA":
		h = sha512.New()
	default:
		return fmt.Errorf("unsupported signing algorithm %q", alg)
	}

	h.Write([]byte(accessToken))
	sum := h.Sum(nil)[:h.Size()/2]
	if base64.RawURLEncoding.EncodeToString(sum) != atHash {
		return errAtHash
	}

	return nil
}
