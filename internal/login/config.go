// Package login implements the browser-popup login flow: the /login and
// /login/callback two-step OAuth dance, the short-lived per-browser session
// binding them, and delivery of minted capability tokens to the opening
// window.
package login

import "time"

// ServerConfig configures the login orchestrator. Constructed once before
// the service accepts requests; immutable afterwards.
type ServerConfig struct {
	// BaseURL is the externally visible base of this service, used to build
	// OAuth redirect and interstitial continue URLs.
	BaseURL string
	// HomeURL receives redirects for unmatched routes.
	HomeURL string
	// PermittedOrigins is the allow-list of origins that may receive login
	// results, compared case-insensitively.
	PermittedOrigins []string
	// SessionCookieName names the opaque browser session cookie.
	SessionCookieName string
	// SessionTTL bounds how long an abandoned login session survives.
	SessionTTL time.Duration
	// PublicKey is the base64 SPKI verification key served by /key.
	PublicKey string
}
