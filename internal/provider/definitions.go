package provider

const serviceUserAgent = "login.airmash.online"

// Provider ids are part of the external contract: they appear in login URLs
// and in persisted external ids, so they must never be renumbered.
const (
	Microsoft = 1
	Google    = 2
	Twitter   = 3
	Reddit    = 4
	Twitch    = 5
)

// Definitions returns the static descriptor table for the five supported
// providers. Client secrets are merged in by NewRegistry from the secrets
// file; everything here is public configuration.
func Definitions() map[int]Descriptor {
	return map[int]Descriptor{
		Microsoft: {
			ID:                   Microsoft,
			Name:                 "Microsoft",
			OAuthVersion:         2,
			AuthorizationURL:     "https://login.live.com/oauth20_authorize.srf",
			AccessTokenURL:       "https://login.live.com/oauth20_token.srf",
			ClientID:             "1f3e960f-3d8f-4649-9dfe-3ee5d72b8668",
			Scope:                "openid",
			ExtraAuthorizeParams: map[string]string{"prompt": "consent"},
			Identity:             NewIDTokenAdapter(),
		},
		Google: {
			ID:                   Google,
			Name:                 "Google",
			OAuthVersion:         2,
			AuthorizationURL:     "https://accounts.google.com/o/oauth2/v2/auth",
			AccessTokenURL:       "https://oauth2.googleapis.com/token",
			ClientID:             "583241767780-bnrnpjqetiuqsd5tuovunflmdjthl7vk.apps.googleusercontent.com",
			Scope:                "openid email",
			ExtraAuthorizeParams: map[string]string{"prompt": "consent"},
			Identity:             NewIDTokenAdapter(),
		},
		Twitter: {
			ID:               Twitter,
			Name:             "Twitter",
			OAuthVersion:     1,
			RequestTokenURL:  "https://twitter.com/oauth/request_token",
			AuthorizationURL: "https://twitter.com/oauth/authenticate",
			AccessTokenURL:   "https://twitter.com/oauth/access_token",
			ConsumerKey:      "arA6LBEe0Nh6jTRw6L9TdH9sU",
			Identity:         NewExchangeFieldAdapter("user_id", "screen_name"),
		},
		Reddit: {
			ID:                   Reddit,
			Name:                 "Reddit",
			OAuthVersion:         2,
			AuthorizationURL:     "https://www.reddit.com/api/v1/authorize",
			AccessTokenURL:       "https://www.reddit.com/api/v1/access_token",
			AccessTokenBasicAuth: true,
			ClientID:             "H6O5BLUMNaiAEw",
			Scope:                "identity",
			ExtraAuthorizeParams: map[string]string{"duration": "temporary"},
			Identity:             NewRedditAdapter("", serviceUserAgent+" by /u/airmashonline"),
		},
		Twitch: {
			ID:                   Twitch,
			Name:                 "Twitch",
			OAuthVersion:         2,
			AuthorizationURL:     "https://id.twitch.tv/oauth2/authorize",
			AccessTokenURL:       "https://id.twitch.tv/oauth2/token",
			ClientID:             "xzp3ei9be2rpm0vdhx2gwpjo238kah",
			Scope:                "",
			ExtraAuthorizeParams: map[string]string{"force_verify": "true"},
			Identity:             NewTwitchAdapter("", serviceUserAgent),
		},
	}
}
