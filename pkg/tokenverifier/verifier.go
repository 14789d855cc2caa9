// Package tokenverifier lets downstream services verify capability tokens
// offline. A service fetches the login service's public key once at startup,
// caches it for the process lifetime, and then verifies bearer tokens with no
// further network access or datastore.
package tokenverifier

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/airmash-refugees/airmash-services/internal/token"
)

// DefaultContextKey is used by GinMiddleware when no explicit key is provided.
const DefaultContextKey = "token_payload"

// Sentinel errors exposed by the verifier.
var (
	ErrMissingPublicKey = errors.New("token.verifier.missing_public_key")
	ErrMissingToken     = errors.New("token.verifier.missing_token")
	ErrTokenTooOld      = errors.New("token.verifier.too_old")
	ErrKeyFetch         = errors.New("token.verifier.key_fetch")
)

// Token failure classes, re-exported so downstream services can classify
// verification errors with errors.Is without reaching into internal packages.
var (
	ErrMalformedToken         = token.ErrMalformedToken
	ErrWrongPurpose           = token.ErrWrongPurpose
	ErrInvalidSignatureLength = token.ErrInvalidSignatureLength
	ErrSignatureMismatch      = token.ErrSignatureMismatch
	ErrMissingField           = token.ErrMissingField
	ErrWrongFieldType         = token.ErrWrongFieldType
)

// Payload is the verified content of a capability token.
type Payload struct {
	// UID is the stable internal user id.
	UID string
	// TS is the issuance timestamp in seconds.
	TS int64
	// For is the purpose the token was minted for.
	For string
}

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// Now returns the current UTC timestamp.
func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// Config configures the Verifier.
type Config struct {
	// PublicKey is the base64 SPKI verification key, as served by /key.
	PublicKey string
	// MaxAge optionally rejects tokens whose issuance timestamp is older
	// than this. Zero disables the check, preserving the issuer's original
	// no-expiry semantics.
	MaxAge time.Duration
	Clock  Clock
}

// Verifier verifies capability tokens against a cached public key.
type Verifier struct {
	publicKey ed25519.PublicKey
	maxAge    time.Duration
	clock     Clock
}

// New constructs a Verifier after parsing the supplied public key.
func New(configuration Config) (*Verifier, error) {
	if strings.TrimSpace(configuration.PublicKey) == "" {
		return nil, fmt.Errorf("token.verifier.new: %w", ErrMissingPublicKey)
	}
	publicKey, parseErr := token.ParsePublicKey(configuration.PublicKey)
	if parseErr != nil {
		return nil, fmt.Errorf("token.verifier.new: %w", parseErr)
	}
	clock := configuration.Clock
	if clock == nil {
		clock = systemClock{}
	}
	return &Verifier{
		publicKey: publicKey,
		maxAge:    configuration.MaxAge,
		clock:     clock,
	}, nil
}

// FetchKey retrieves the base64 SPKI public key from the login service's /key
// endpoint. Callers fetch once at startup and treat failure as fatal.
func FetchKey(ctx context.Context, keyURL string) (string, error) {
	request, requestErr := http.NewRequestWithContext(ctx, http.MethodGet, keyURL, nil)
	if requestErr != nil {
		return "", fmt.Errorf("token.verifier.fetch_key: %w", requestErr)
	}
	client := &http.Client{Timeout: 10 * time.Second}
	response, doErr := client.Do(request)
	if doErr != nil {
		return "", fmt.Errorf("token.verifier.fetch_key: %w", doErr)
	}
	defer func() { _ = response.Body.Close() }()
	if response.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token.verifier.fetch_key: status %d: %w", response.StatusCode, ErrKeyFetch)
	}
	body, readErr := io.ReadAll(io.LimitReader(response.Body, 1<<16))
	if readErr != nil {
		return "", fmt.Errorf("token.verifier.fetch_key: %w", readErr)
	}
	var payload struct {
		Key string `json:"key"`
	}
	if unmarshalErr := json.Unmarshal(body, &payload); unmarshalErr != nil || payload.Key == "" {
		return "", fmt.Errorf("token.verifier.fetch_key: %w", ErrKeyFetch)
	}
	return payload.Key, nil
}

// NewFromKeyURL fetches the public key and constructs a Verifier in one step.
func NewFromKeyURL(ctx context.Context, keyURL string, maxAge time.Duration) (*Verifier, error) {
	publicKey, fetchErr := FetchKey(ctx, keyURL)
	if fetchErr != nil {
		return nil, fetchErr
	}
	return New(Config{PublicKey: publicKey, MaxAge: maxAge})
}

// Verify checks the token's signature and purpose and returns the payload.
func (verifier *Verifier) Verify(tokenString string, expectedPurpose string) (Payload, error) {
	if strings.TrimSpace(tokenString) == "" {
		return Payload{}, fmt.Errorf("token.verifier.verify: %w", ErrMissingToken)
	}
	payload, verifyErr := token.Verify(verifier.publicKey, tokenString, expectedPurpose)
	if verifyErr != nil {
		return Payload{}, verifyErr
	}
	if verifier.maxAge > 0 {
		issuedAt := time.Unix(payload.TS, 0)
		if verifier.clock.Now().Sub(issuedAt) > verifier.maxAge {
			return Payload{}, fmt.Errorf("token.verifier.verify: %w", ErrTokenTooOld)
		}
	}
	return Payload{UID: payload.UID, TS: payload.TS, For: payload.For}, nil
}

// VerifyRequest extracts the bearer token from the Authorization header and
// verifies it.
func (verifier *Verifier) VerifyRequest(request *http.Request, expectedPurpose string) (Payload, error) {
	if request == nil {
		return Payload{}, fmt.Errorf("token.verifier.verify_request: %w", ErrMissingToken)
	}
	bearer, bearerErr := bearerToken(request.Header.Get("Authorization"))
	if bearerErr != nil {
		return Payload{}, bearerErr
	}
	return verifier.Verify(bearer, expectedPurpose)
}

// GinMiddleware verifies the bearer token for the given purpose and injects
// the payload into the gin context. Every failure collapses to a bare 401;
// the detailed reason is for logs only.
func (verifier *Verifier) GinMiddleware(expectedPurpose string, contextKey string) gin.HandlerFunc {
	if strings.TrimSpace(contextKey) == "" {
		contextKey = DefaultContextKey
	}
	return func(contextGin *gin.Context) {
		payload, verifyErr := verifier.VerifyRequest(contextGin.Request, expectedPurpose)
		if verifyErr != nil {
			contextGin.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		contextGin.Set(contextKey, payload)
		contextGin.Next()
	}
}

func bearerToken(header string) (string, error) {
	parts := strings.Split(header, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", fmt.Errorf("token.verifier.bearer: %w", ErrMissingToken)
	}
	return parts[1], nil
}
