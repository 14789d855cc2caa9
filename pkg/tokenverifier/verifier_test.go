package tokenverifier

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/airmash-refugees/airmash-services/internal/token"
)

type fixedClock struct {
	current time.Time
}

func (clock fixedClock) Now() time.Time {
	return clock.current
}

func newTestSetup(t *testing.T) (string, *token.Signer) {
	t.Helper()
	publicKey, privateKey, keyErr := ed25519.GenerateKey(rand.Reader)
	if keyErr != nil {
		t.Fatalf("generating keypair failed: %v", keyErr)
	}
	encodedPublic, marshalErr := token.MarshalPublicKey(publicKey)
	if marshalErr != nil {
		t.Fatalf("marshal public key failed: %v", marshalErr)
	}
	signer, signerErr := token.NewSigner(privateKey)
	if signerErr != nil {
		t.Fatalf("constructing signer failed: %v", signerErr)
	}
	return encodedPublic, signer
}

func TestNewRequiresParsablePublicKey(t *testing.T) {
	if _, newErr := New(Config{}); !errors.Is(newErr, ErrMissingPublicKey) {
		t.Fatalf("expected ErrMissingPublicKey, got %v", newErr)
	}
	if _, newErr := New(Config{PublicKey: "not base64!!"}); newErr == nil {
		t.Fatalf("expected error for undecodable key")
	}
}

func TestVerifyAcceptsOwnTokens(t *testing.T) {
	encodedPublic, signer := newTestSetup(t)
	verifier, newErr := New(Config{PublicKey: encodedPublic})
	if newErr != nil {
		t.Fatalf("constructing verifier failed: %v", newErr)
	}

	tokenString := signer.Sign("0123456789abcdef", time.Now().Unix(), "settings")
	payload, verifyErr := verifier.Verify(tokenString, "settings")
	if verifyErr != nil {
		t.Fatalf("verify failed: %v", verifyErr)
	}
	if payload.UID != "0123456789abcdef" {
		t.Fatalf("unexpected uid: %s", payload.UID)
	}

	if _, wrongErr := verifier.Verify(tokenString, "game"); !errors.Is(wrongErr, ErrWrongPurpose) {
		t.Fatalf("expected ErrWrongPurpose, got %v", wrongErr)
	}
}

func TestVerifyClassifiesFailuresWithExportedSentinels(t *testing.T) {
	encodedPublic, _ := newTestSetup(t)
	verifier, newErr := New(Config{PublicKey: encodedPublic})
	if newErr != nil {
		t.Fatalf("constructing verifier failed: %v", newErr)
	}
	if _, verifyErr := verifier.Verify("garbage", "settings"); !errors.Is(verifyErr, ErrMalformedToken) {
		t.Fatalf("expected ErrMalformedToken, got %v", verifyErr)
	}
}

func TestVerifyMaxAgeIsOptIn(t *testing.T) {
	encodedPublic, signer := newTestSetup(t)
	issuedAt := time.Now().Add(-48 * time.Hour)
	tokenString := signer.Sign("0123456789abcdef", issuedAt.Unix(), "game")

	unlimited, newErr := New(Config{PublicKey: encodedPublic})
	if newErr != nil {
		t.Fatalf("constructing verifier failed: %v", newErr)
	}
	if _, verifyErr := unlimited.Verify(tokenString, "game"); verifyErr != nil {
		t.Fatalf("expected stale token accepted without MaxAge, got %v", verifyErr)
	}

	bounded, boundedErr := New(Config{PublicKey: encodedPublic, MaxAge: time.Hour, Clock: fixedClock{current: time.Now()}})
	if boundedErr != nil {
		t.Fatalf("constructing bounded verifier failed: %v", boundedErr)
	}
	if _, verifyErr := bounded.Verify(tokenString, "game"); !errors.Is(verifyErr, ErrTokenTooOld) {
		t.Fatalf("expected ErrTokenTooOld, got %v", verifyErr)
	}
}

func TestFetchKeyFromKeyEndpoint(t *testing.T) {
	encodedPublic, signer := newTestSetup(t)
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "application/json")
		_, _ = writer.Write([]byte(`{"key":"` + encodedPublic + `"}`))
	}))
	defer server.Close()

	verifier, newErr := NewFromKeyURL(context.Background(), server.URL, 0)
	if newErr != nil {
		t.Fatalf("constructing verifier from key url failed: %v", newErr)
	}

	tokenString := signer.Sign("0123456789abcdef", time.Now().Unix(), "settings")
	if _, verifyErr := verifier.Verify(tokenString, "settings"); verifyErr != nil {
		t.Fatalf("verify failed: %v", verifyErr)
	}
}

func TestFetchKeyFailsOnBadResponses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		http.Error(writer, "down", http.StatusInternalServerError)
	}))
	defer server.Close()

	if _, fetchErr := FetchKey(context.Background(), server.URL); !errors.Is(fetchErr, ErrKeyFetch) {
		t.Fatalf("expected ErrKeyFetch, got %v", fetchErr)
	}
}

func TestGinMiddlewareCollapsesFailuresTo401(t *testing.T) {
	gin.SetMode(gin.TestMode)
	encodedPublic, signer := newTestSetup(t)
	verifier, newErr := New(Config{PublicKey: encodedPublic})
	if newErr != nil {
		t.Fatalf("constructing verifier failed: %v", newErr)
	}

	router := gin.New()
	router.GET("/protected", verifier.GinMiddleware("settings", ""), func(contextGin *gin.Context) {
		payload := contextGin.MustGet(DefaultContextKey).(Payload)
		contextGin.String(http.StatusOK, payload.UID)
	})

	valid := signer.Sign("0123456789abcdef", time.Now().Unix(), "settings")
	wrongPurpose := signer.Sign("0123456789abcdef", time.Now().Unix(), "game")

	cases := []struct {
		name           string
		authorization  string
		expectedStatus int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer garbage", http.StatusUnauthorized},
		{"wrong purpose", "Bearer " + wrongPurpose, http.StatusUnauthorized},
		{"valid", "Bearer " + valid, http.StatusOK},
	}
	for _, testCase := range cases {
		recorder := httptest.NewRecorder()
		request := httptest.NewRequest(http.MethodGet, "/protected", nil)
		if testCase.authorization != "" {
			request.Header.Set("Authorization", testCase.authorization)
		}
		router.ServeHTTP(recorder, request)
		if recorder.Code != testCase.expectedStatus {
			t.Fatalf("%s: expected status %d, got %d", testCase.name, testCase.expectedStatus, recorder.Code)
		}
		if testCase.expectedStatus == http.StatusUnauthorized && recorder.Body.Len() != 0 {
			t.Fatalf("%s: expected empty 401 body, got %q", testCase.name, recorder.Body.String())
		}
	}
}
