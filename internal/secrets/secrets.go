// Package secrets loads the private configuration payload shared by the login
// services: per-provider client secrets and the Ed25519 signing keypair.
package secrets

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

var (
	// ErrMissingSigningKey indicates the secrets file has no usable keypair.
	ErrMissingSigningKey = errors.New("secrets.missing_signing_key")
)

// ProviderSecrets holds the secret half of one identity provider's credentials.
// OAuth2 providers use ClientSecret; OAuth1 providers use ConsumerSecret.
type ProviderSecrets struct {
	ClientSecret   string `json:"clientSecret"`
	ConsumerSecret string `json:"consumerSecret"`
}

// SigningKey is the Ed25519 keypair in base64 DER form (PKCS8 private,
// SPKI public). The public half is not a secret; it is served by /key.
type SigningKey struct {
	Private string `json:"private"`
	Public  string `json:"public"`
}

// File is the parsed secrets payload. Provider keys are decimal provider ids.
type File struct {
	IdentityProviders map[string]ProviderSecrets `json:"IdentityProviders"`
	Ed25519SigningKey SigningKey                 `json:"Ed25519SigningKey"`
}

// Load reads and parses the secrets file. A service must not serve traffic
// without its key material, so callers treat any error as fatal.
func Load(path string) (File, error) {
	raw, readErr := os.ReadFile(path)
	if readErr != nil {
		return File{}, fmt.Errorf("secrets.load: %w", readErr)
	}
	var parsed File
	if unmarshalErr := json.Unmarshal(raw, &parsed); unmarshalErr != nil {
		return File{}, fmt.Errorf("secrets.load: %w", unmarshalErr)
	}
	if strings.TrimSpace(parsed.Ed25519SigningKey.Private) == "" || strings.TrimSpace(parsed.Ed25519SigningKey.Public) == "" {
		return File{}, fmt.Errorf("secrets.load: %w", ErrMissingSigningKey)
	}
	return parsed, nil
}
