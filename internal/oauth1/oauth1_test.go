package oauth1

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func newTestClient(serverURL string) *Client {
	return NewClient("consumer-key", "consumer-secret", "https://login.example/login/callback", Endpoints{
		RequestTokenURL:  serverURL + "/request_token",
		AuthorizationURL: serverURL + "/authenticate",
		AccessTokenURL:   serverURL + "/access_token",
	})
}

func TestRequestTokenRoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.Method != http.MethodPost {
			t.Fatalf("expected POST, got %s", request.Method)
		}
		authorization := request.Header.Get("Authorization")
		if !strings.HasPrefix(authorization, "OAuth ") {
			t.Fatalf("expected OAuth authorization header, got %q", authorization)
		}
		for _, required := range []string{`oauth_consumer_key="consumer-key"`, "oauth_signature=", "oauth_callback="} {
			if !strings.Contains(authorization, required) {
				t.Fatalf("authorization header missing %q: %s", required, authorization)
			}
		}
		_, _ = writer.Write([]byte("oauth_token=request-token&oauth_token_secret=request-secret&oauth_callback_confirmed=true"))
	}))
	defer server.Close()

	requestToken, tokenSecret, requestErr := newTestClient(server.URL).RequestToken()
	if requestErr != nil {
		t.Fatalf("request token failed: %v", requestErr)
	}
	if requestToken != "request-token" || tokenSecret != "request-secret" {
		t.Fatalf("unexpected token pair: %q / %q", requestToken, tokenSecret)
	}
}

func TestRequestTokenIncompleteResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		_, _ = writer.Write([]byte("oauth_token=request-token&oauth_callback_confirmed=true"))
	}))
	defer server.Close()

	if _, _, requestErr := newTestClient(server.URL).RequestToken(); requestErr == nil {
		t.Fatalf("expected error for response without token secret")
	}
}

func TestAuthorizeURLCarriesRequestToken(t *testing.T) {
	authorizeURL, urlErr := newTestClient("https://provider.example").AuthorizeURL("request-token")
	if urlErr != nil {
		t.Fatalf("authorize url failed: %v", urlErr)
	}
	parsed, parseErr := url.Parse(authorizeURL)
	if parseErr != nil {
		t.Fatalf("parsing authorize url failed: %v", parseErr)
	}
	if parsed.Path != "/authenticate" {
		t.Fatalf("unexpected authorize path: %s", parsed.Path)
	}
	if parsed.Query().Get("oauth_token") != "request-token" {
		t.Fatalf("authorize url missing request token: %s", authorizeURL)
	}
}

func TestAccessTokenPreservesIdentityFields(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		authorization := request.Header.Get("Authorization")
		if !strings.Contains(authorization, `oauth_token="request-token"`) {
			t.Fatalf("expected request token in authorization header, got %q", authorization)
		}
		if parseErr := request.ParseForm(); parseErr != nil {
			t.Fatalf("parsing form failed: %v", parseErr)
		}
		if request.PostForm.Get("oauth_verifier") != "the-verifier" {
			t.Fatalf("expected verifier in form body, got %q", request.PostForm.Get("oauth_verifier"))
		}
		_, _ = writer.Write([]byte("oauth_token=access-token&oauth_token_secret=access-secret&user_id=99&screen_name=pilot"))
	}))
	defer server.Close()

	results, accessErr := newTestClient(server.URL).AccessToken(context.Background(), "request-token", "request-secret", "the-verifier")
	if accessErr != nil {
		t.Fatalf("access token failed: %v", accessErr)
	}
	expected := map[string]string{
		"oauth_token":        "access-token",
		"oauth_token_secret": "access-secret",
		"user_id":            "99",
		"screen_name":        "pilot",
	}
	for key, value := range expected {
		if results[key] != value {
			t.Fatalf("expected %s=%q, got %q", key, value, results[key])
		}
	}
}

func TestAccessTokenErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		http.Error(writer, "nope", http.StatusUnauthorized)
	}))
	defer server.Close()

	if _, accessErr := newTestClient(server.URL).AccessToken(context.Background(), "request-token", "request-secret", "the-verifier"); accessErr == nil {
		t.Fatalf("expected error for non-200 exchange")
	}
}

func TestAccessTokenMissingToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		_, _ = writer.Write([]byte("user_id=99&screen_name=pilot"))
	}))
	defer server.Close()

	_, accessErr := newTestClient(server.URL).AccessToken(context.Background(), "request-token", "request-secret", "the-verifier")
	if !errors.Is(accessErr, ErrTokenMissing) {
		t.Fatalf("expected ErrTokenMissing, got %v", accessErr)
	}
}
