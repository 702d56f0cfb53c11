// Package config defines the necessary types to configure the application.
// An example config file config.yaml is provided in the repository.
package config

import (
	"time"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
)

type Config struct {
	commoncfg.BaseConfig `mapstructure:",squash" yaml:",inline"`

	HTTP HTTPServer `yaml:"http"`

	Database  Database  `yaml:"database"`
	ValKey    ValKey    `yaml:"valkey"`
	Migrate   Migrate   `yaml:"migrate"`
	OAuth     OAuth     `yaml:"oauth"`
	Classroom Classroom `yaml:"classroom"`
	Session   Session   `yaml:"session"`
}

type HTTPServer struct {
	Address         string        `yaml:"address" default:":5000"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" default:"5s"`
}

type Database struct {
	Name     string              `yaml:"name"`
	Port     string              `yaml:"port"`
	Host     commoncfg.SourceRef `yaml:"host"`
	User     commoncfg.SourceRef `yaml:"user"`
	Password commoncfg.SourceRef `yaml:"password"`
	SSLMode  string              `yaml:"sslMode"`
}

type ValKey struct {
	Host     commoncfg.SourceRef `yaml:"host"`
	User     commoncfg.SourceRef `yaml:"user"`
	Password commoncfg.SourceRef `yaml:"password"`
	Prefix   string              `yaml:"prefix" default:"addon-auth"`
	MTLS     *commoncfg.MTLS     `yaml:"mtls"`
}

type Migrate struct {
	// Source is "embedded" or a file:// directory.
	Source string `yaml:"source" default:"embedded"`
}

// OAuth configures the identity provider. The client id and secret come from
// the provider's client secret document.
type OAuth struct {
	ClientSecret commoncfg.SourceRef `yaml:"clientSecret"`
	RedirectURL  string              `yaml:"redirectURL" default:"https://localhost:5000/callback"`
	AuthURL      string              `yaml:"authURL"`
	TokenURL     string              `yaml:"tokenURL"`
	RevokeURL    string              `yaml:"revokeURL" default:"https://oauth2.googleapis.com/revoke"`
	JWKSURL      string              `yaml:"jwksURL" default:"https://www.googleapis.com/oauth2/v3/certs"`
	Issuers      []string            `yaml:"issuers" default:"[\"accounts.google.com\",\"https://accounts.google.com\"]"`
	Scopes       []string            `yaml:"scopes"`
	JWKSCacheTTL time.Duration       `yaml:"jwksCacheTTL" default:"1h"`
}

type Classroom struct {
	BaseURL string              `yaml:"baseURL" default:"https://classroom.googleapis.com"`
	APIKey  commoncfg.SourceRef `yaml:"apiKey"`
	// AttachmentViewURL is where the host loads an attachment.
	AttachmentViewURL string `yaml:"attachmentViewURL" default:"https://localhost:5000/load-content-attachment"`
}

type Session struct {
	Duration time.Duration  `yaml:"duration" default:"24h"`
	Cookie   CookieTemplate `yaml:"cookie"`
}

type CookieSameSite string

const (
	CookieSameSiteNone   CookieSameSite = "None"
	CookieSameSiteLax    CookieSameSite = "Lax"
	CookieSameSiteStrict CookieSameSite = "Strict"
)

type CookieTemplate struct {
	Name     string         `yaml:"name" default:"addon_session"`
	MaxAge   int            `yaml:"maxAge"`
	Path     string         `yaml:"path" default:"/"`
	Domain   string         `yaml:"domain"`
	Secure   bool           `yaml:"secure" default:"true"`
	HTTPOnly bool           `yaml:"httpOnly" default:"true"`
	SameSite CookieSameSite `yaml:"sameSite" default:"None"`
}
