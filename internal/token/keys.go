package token

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
)

var (
	// ErrNotEd25519Key indicates the decoded key material is some other key type.
	ErrNotEd25519Key = errors.New("token.keys.not_ed25519")
)

// ParsePrivateKey decodes a base64 PKCS8 DER Ed25519 private key, as stored
// in the secrets file.
func ParsePrivateKey(encoded string) (ed25519.PrivateKey, error) {
	der, decodeErr := base64.StdEncoding.DecodeString(encoded)
	if decodeErr != nil {
		return nil, fmt.Errorf("token.keys.parse_private: %w", decodeErr)
	}
	parsed, parseErr := x509.ParsePKCS8PrivateKey(der)
	if parseErr != nil {
		return nil, fmt.Errorf("token.keys.parse_private: %w", parseErr)
	}
	privateKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("token.keys.parse_private: %w", ErrNotEd25519Key)
	}
	return privateKey, nil
}

// ParsePublicKey decodes a base64 SPKI DER Ed25519 public key, the format
// served by the login service's /key endpoint.
func ParsePublicKey(encoded string) (ed25519.PublicKey, error) {
	der, decodeErr := base64.StdEncoding.DecodeString(encoded)
	if decodeErr != nil {
		return nil, fmt.Errorf("token.keys.parse_public: %w", decodeErr)
	}
	parsed, parseErr := x509.ParsePKIXPublicKey(der)
	if parseErr != nil {
		return nil, fmt.Errorf("token.keys.parse_public: %w", parseErr)
	}
	publicKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("token.keys.parse_public: %w", ErrNotEd25519Key)
	}
	return publicKey, nil
}

// MarshalPublicKey encodes a public key as base64 SPKI DER for /key responses
// and secrets files.
func MarshalPublicKey(publicKey ed25519.PublicKey) (string, error) {
	der, marshalErr := x509.MarshalPKIXPublicKey(publicKey)
	if marshalErr != nil {
		return "", fmt.Errorf("token.keys.marshal_public: %w", marshalErr)
	}
	return base64.StdEncoding.EncodeToString(der), nil
}

// MarshalPrivateKey encodes a private key as base64 PKCS8 DER, the inverse of
// ParsePrivateKey. Used by keypair generation tooling and tests.
func MarshalPrivateKey(privateKey ed25519.PrivateKey) (string, error) {
	der, marshalErr := x509.MarshalPKCS8PrivateKey(privateKey)
	if marshalErr != nil {
		return "", fmt.Errorf("token.keys.marshal_private: %w", marshalErr)
	}
	return base64.StdEncoding.EncodeToString(der), nil
}
