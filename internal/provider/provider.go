// Package provider describes the external identity providers the login
// service can federate with, and the per-provider strategies for turning a
// raw OAuth token exchange result into a uniform external identity.
package provider

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// ErrIdentityExtraction is the uniform failure for every adapter: extraction
// either yields a complete identity or this error, never a partial identity.
var ErrIdentityExtraction = errors.New("provider.identity_extraction_failed")

// ErrUnknownProvider indicates a provider id with no descriptor.
var ErrUnknownProvider = errors.New("provider.unknown")

// Identity is the uniform external identity shape. UniqueID is mandatory;
// DisplayName degrades to UniqueID when the provider offers nothing better.
type Identity struct {
	UniqueID    string
	DisplayName string
}

// ExchangeResult carries the outcome of an OAuth token exchange: the access
// token plus any extra response fields (id_token, user_id, screen_name, ...).
type ExchangeResult struct {
	AccessToken string
	Extra       map[string]string
}

// IdentityAdapter extracts an identity from an exchange result. One variant
// exists per extraction strategy; adding a provider means adding a variant or
// reusing an existing one, never touching the orchestrator.
type IdentityAdapter interface {
	ExtractIdentity(ctx context.Context, result ExchangeResult) (Identity, error)
}

// Descriptor is the static per-provider configuration, immutable once the
// registry is built.
type Descriptor struct {
	ID           int
	Name         string
	OAuthVersion int

	// OAuth2 fields.
	AuthorizationURL     string
	AccessTokenURL       string
	ClientID             string
	ClientSecret         string
	Scope                string
	ExtraAuthorizeParams map[string]string
	AccessTokenBasicAuth bool

	// OAuth1 fields.
	RequestTokenURL string
	ConsumerKey     string
	ConsumerSecret  string

	Identity IdentityAdapter
}

// Registry is the immutable provider table keyed by provider id.
type Registry struct {
	descriptors map[int]Descriptor
}

// NewRegistry merges descriptors with secret-sourced fields into an immutable
// registry. Secrets are keyed by decimal provider id, matching the secrets
// file layout.
func NewRegistry(descriptors map[int]Descriptor, clientSecrets map[int]string, consumerSecrets map[int]string) *Registry {
	merged := make(map[int]Descriptor, len(descriptors))
	for id, descriptor := range descriptors {
		if secret, ok := clientSecrets[id]; ok && secret != "" {
			descriptor.ClientSecret = secret
		}
		if secret, ok := consumerSecrets[id]; ok && secret != "" {
			descriptor.ConsumerSecret = secret
		}
		merged[id] = descriptor
	}
	return &Registry{descriptors: merged}
}

// Get returns the descriptor for a provider id.
func (registry *Registry) Get(providerID int) (Descriptor, error) {
	descriptor, ok := registry.descriptors[providerID]
	if !ok {
		return Descriptor{}, ErrUnknownProvider
	}
	return descriptor, nil
}

func newResourceClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}
