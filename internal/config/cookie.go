package config

import "net/http"

var sameSiteModes = map[CookieSameSite]http.SameSite{
	CookieSameSiteNone:   http.SameSiteNoneMode,
	CookieSameSiteLax:    http.SameSiteLaxMode,
	CookieSameSiteStrict: http.SameSiteStrictMode,
}

// ToCookie renders the session cookie carrying value. The add-on runs inside
// the host's iframe, so SameSite=None is common; browsers drop such a cookie
// unless it is also Secure.
func (ct *CookieTemplate) ToCookie(value string) *http.Cookie {
	mode := sameSiteModes[ct.SameSite]

	return &http.Cookie{
		Name:     ct.Name,
		Value:    value,
		MaxAge:   ct.MaxAge,
		Path:     ct.Path,
		Domain:   ct.Domain,
		Secure:   ct.Secure || mode == http.SameSiteNoneMode,
		HttpOnly: ct.HTTPOnly,
		SameSite: mode,
	}
}
