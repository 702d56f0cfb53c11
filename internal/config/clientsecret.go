package config

import (
	"errors"
	"fmt"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

var ErrInvalidClientSecret = errors.New("invalid client secret document")

// LoadClientSecrets resolves ref to a provider client_secret.json document
// and builds the OAuth client configuration from it. The web section wins
// over the installed one; the first redirect URI is used.
func LoadClientSecrets(ref commoncfg.SourceRef, scopes ...string) (*oauth2.Config, error) {
	raw, err := commoncfg.LoadValueFromSourceRef(ref)
	if err != nil {
		return nil, fmt.Errorf("loading client secret: %w", err)
	}

	cfg, err := google.ConfigFromJSON(raw, scopes...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidClientSecret, err)
	}

	return cfg, nil
}
