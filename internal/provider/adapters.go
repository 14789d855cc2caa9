package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
)

// IDTokenAdapter decodes the claims segment of a JWT-shaped id_token from the
// exchange result. The id_token arrived over the provider's own TLS token
// endpoint, so the claims are extracted without signature verification.
type IDTokenAdapter struct{}

// NewIDTokenAdapter constructs the id_token decode strategy.
func NewIDTokenAdapter() IDTokenAdapter {
	return IDTokenAdapter{}
}

// ExtractIdentity requires a sub claim; display name falls back from email to sub.
func (IDTokenAdapter) ExtractIdentity(ctx context.Context, result ExchangeResult) (Identity, error) {
	idToken := result.Extra["id_token"]
	if idToken == "" {
		return Identity{}, fmt.Errorf("provider.id_token.missing: %w", ErrIdentityExtraction)
	}
	claims := jwt.MapClaims{}
	if _, _, parseErr := jwt.NewParser().ParseUnverified(idToken, claims); parseErr != nil {
		return Identity{}, fmt.Errorf("provider.id_token.parse: %w", ErrIdentityExtraction)
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return Identity{}, fmt.Errorf("provider.id_token.no_sub: %w", ErrIdentityExtraction)
	}
	displayName := sub
	if email, _ := claims["email"].(string); email != "" {
		displayName = email
	}
	return Identity{UniqueID: sub, DisplayName: displayName}, nil
}

// ExchangeFieldAdapter reads the identity directly from the token exchange
// response fields (Twitter returns user_id and screen_name alongside the
// access token).
type ExchangeFieldAdapter struct {
	idField      string
	displayField string
}

// NewExchangeFieldAdapter constructs the direct-field strategy.
func NewExchangeFieldAdapter(idField string, displayField string) ExchangeFieldAdapter {
	return ExchangeFieldAdapter{idField: idField, displayField: displayField}
}

// ExtractIdentity fails if the id field is absent from the exchange result.
func (adapter ExchangeFieldAdapter) ExtractIdentity(ctx context.Context, result ExchangeResult) (Identity, error) {
	uniqueID := result.Extra[adapter.idField]
	if uniqueID == "" {
		return Identity{}, fmt.Errorf("provider.exchange_field.%s_missing: %w", adapter.idField, ErrIdentityExtraction)
	}
	displayName := result.Extra[adapter.displayField]
	if displayName == "" {
		displayName = uniqueID
	}
	return Identity{UniqueID: uniqueID, DisplayName: displayName}, nil
}

// RedditAdapter issues an authenticated follow-up call to Reddit's identity
// endpoint; the exchange result alone carries no identity.
type RedditAdapter struct {
	identityURL string
	userAgent   string
	client      *http.Client
}

// NewRedditAdapter constructs the Reddit follow-up strategy. identityURL is
// overridable for tests; empty selects the production endpoint.
func NewRedditAdapter(identityURL string, userAgent string) *RedditAdapter {
	if identityURL == "" {
		identityURL = "https://oauth.reddit.com/api/v1/me"
	}
	return &RedditAdapter{identityURL: identityURL, userAgent: userAgent, client: newResourceClient()}
}

// ExtractIdentity fetches /api/v1/me and uses the account name as both id and
// display name, matching Reddit's stable account naming.
func (adapter *RedditAdapter) ExtractIdentity(ctx context.Context, result ExchangeResult) (Identity, error) {
	body, fetchErr := fetchBearerJSON(ctx, adapter.client, adapter.identityURL, result.AccessToken, adapter.userAgent)
	if fetchErr != nil {
		return Identity{}, fmt.Errorf("provider.reddit.fetch: %w", ErrIdentityExtraction)
	}
	var me struct {
		Name string `json:"name"`
	}
	if unmarshalErr := json.Unmarshal(body, &me); unmarshalErr != nil || me.Name == "" {
		return Identity{}, fmt.Errorf("provider.reddit.name_missing: %w", ErrIdentityExtraction)
	}
	return Identity{UniqueID: me.Name, DisplayName: me.Name}, nil
}

// TwitchAdapter issues an authenticated follow-up call to Twitch's users
// endpoint and reads the first element of the data array.
type TwitchAdapter struct {
	usersURL  string
	userAgent string
	client    *http.Client
}

// NewTwitchAdapter constructs the Twitch follow-up strategy. usersURL is
// overridable for tests; empty selects the production endpoint.
func NewTwitchAdapter(usersURL string, userAgent string) *TwitchAdapter {
	if usersURL == "" {
		usersURL = "https://api.twitch.tv/helix/users"
	}
	return &TwitchAdapter{usersURL: usersURL, userAgent: userAgent, client: newResourceClient()}
}

// ExtractIdentity uses the numeric Twitch user id; display name falls back
// from the login name to the id.
func (adapter *TwitchAdapter) ExtractIdentity(ctx context.Context, result ExchangeResult) (Identity, error) {
	body, fetchErr := fetchBearerJSON(ctx, adapter.client, adapter.usersURL, result.AccessToken, adapter.userAgent)
	if fetchErr != nil {
		return Identity{}, fmt.Errorf("provider.twitch.fetch: %w", ErrIdentityExtraction)
	}
	var users struct {
		Data []struct {
			ID    string `json:"id"`
			Login string `json:"login"`
		} `json:"data"`
	}
	if unmarshalErr := json.Unmarshal(body, &users); unmarshalErr != nil || len(users.Data) == 0 || users.Data[0].ID == "" {
		return Identity{}, fmt.Errorf("provider.twitch.id_missing: %w", ErrIdentityExtraction)
	}
	displayName := users.Data[0].Login
	if displayName == "" {
		displayName = users.Data[0].ID
	}
	return Identity{UniqueID: users.Data[0].ID, DisplayName: displayName}, nil
}

func fetchBearerJSON(ctx context.Context, client *http.Client, resourceURL string, accessToken string, userAgent string) ([]byte, error) {
	request, requestErr := http.NewRequestWithContext(ctx, http.MethodGet, resourceURL, nil)
	if requestErr != nil {
		return nil, requestErr
	}
	request.Header.Set("Authorization", "Bearer "+accessToken)
	if userAgent != "" {
		request.Header.Set("User-Agent", userAgent)
	}
	response, doErr := client.Do(request)
	if doErr != nil {
		return nil, doErr
	}
	defer func() { _ = response.Body.Close() }()
	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("resource status %d", response.StatusCode)
	}
	return io.ReadAll(io.LimitReader(response.Body, 1<<20))
}
