// Package oauth1 adapts the dghubble/oauth1 client to the login flow's
// OAuth 1.0a leg: request token, authorize URL, and an access-token exchange
// that preserves every response field (Twitter returns user_id and
// screen_name alongside the token).
package oauth1

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	dghubble "github.com/dghubble/oauth1"
)

var (
	// ErrTokenMissing indicates the provider response lacked oauth_token fields.
	ErrTokenMissing = errors.New("oauth1.token_missing")
)

// Endpoints holds the three provider URLs of the OAuth 1.0a dance.
type Endpoints struct {
	RequestTokenURL  string
	AuthorizationURL string
	AccessTokenURL   string
}

// Client runs the OAuth 1.0a legs for one consumer key. Signing (RFC 5849
// base string, HMAC-SHA1) is delegated to dghubble/oauth1 throughout.
type Client struct {
	config *dghubble.Config
}

// NewClient constructs a Client for the given consumer credentials.
func NewClient(consumerKey string, consumerSecret string, callbackURL string, endpoints Endpoints) *Client {
	return &Client{
		config: &dghubble.Config{
			ConsumerKey:    consumerKey,
			ConsumerSecret: consumerSecret,
			CallbackURL:    callbackURL,
			Endpoint: dghubble.Endpoint{
				RequestTokenURL: endpoints.RequestTokenURL,
				AuthorizeURL:    endpoints.AuthorizationURL,
				AccessTokenURL:  endpoints.AccessTokenURL,
			},
		},
	}
}

// RequestToken obtains a temporary request token and its secret.
func (client *Client) RequestToken() (string, string, error) {
	requestToken, tokenSecret, requestErr := client.config.RequestToken()
	if requestErr != nil {
		return "", "", fmt.Errorf("oauth1.request_token: %w", requestErr)
	}
	return requestToken, tokenSecret, nil
}

// AuthorizeURL builds the browser redirect target for a request token.
func (client *Client) AuthorizeURL(requestToken string) (string, error) {
	authorizeURL, urlErr := client.config.AuthorizationURL(requestToken)
	if urlErr != nil {
		return "", fmt.Errorf("oauth1.authorize_url: %w", urlErr)
	}
	return authorizeURL.String(), nil
}

// AccessToken exchanges an authorized request token and verifier for an
// access token. The POST is made through the library's signing transport with
// the request token; oauth_verifier travels in the form body, which the
// signer folds into the signature base string (RFC 5849 permits either
// placement). Unlike the library's own exchange helper, the returned map
// carries every response field, including provider identity fields such as
// user_id and screen_name.
func (client *Client) AccessToken(ctx context.Context, requestToken string, tokenSecret string, verifier string) (map[string]string, error) {
	signingClient := client.config.Client(ctx, dghubble.NewToken(requestToken, tokenSecret))
	response, postErr := signingClient.PostForm(client.config.Endpoint.AccessTokenURL, url.Values{"oauth_verifier": {verifier}})
	if postErr != nil {
		return nil, fmt.Errorf("oauth1.access_token: %w", postErr)
	}
	defer func() { _ = response.Body.Close() }()
	body, readErr := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if readErr != nil {
		return nil, fmt.Errorf("oauth1.access_token: %w", readErr)
	}
	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oauth1.access_token: status %d: %s", response.StatusCode, strings.TrimSpace(string(body)))
	}
	values, parseErr := url.ParseQuery(string(body))
	if parseErr != nil {
		return nil, fmt.Errorf("oauth1.access_token: %w", parseErr)
	}
	if values.Get("oauth_token") == "" {
		return nil, fmt.Errorf("oauth1.access_token: %w", ErrTokenMissing)
	}
	results := make(map[string]string, len(values))
	for key := range values {
		results[key] = values.Get(key)
	}
	return results, nil
}
