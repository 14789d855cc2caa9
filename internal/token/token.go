// Package token implements the capability tokens exchanged between the login
// service and downstream game services. A token is two unpadded base64url
// segments joined by a dot: a JSON payload and an Ed25519 signature over the
// exact payload bytes. Verification needs only the public key; no datastore
// or network call is involved.
package token

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors returned by Verify, ordered by the checks that raise them.
var (
	ErrMalformedToken         = errors.New("token.malformed")
	ErrWrongPurpose           = errors.New("token.wrong_purpose")
	ErrInvalidSignatureLength = errors.New("token.invalid_signature_length")
	ErrSignatureMismatch      = errors.New("token.signature_mismatch")
	ErrMissingField           = errors.New("token.missing_field")
	ErrWrongFieldType         = errors.New("token.wrong_field_type")
)

// Payload is the signed content of a capability token. Field order matters:
// it fixes the byte serialization the signature covers.
type Payload struct {
	UID string `json:"uid"`
	TS  int64  `json:"ts"`
	For string `json:"for"`
}

// Signer mints capability tokens with an Ed25519 private key. It is the only
// type that ever holds the private key.
type Signer struct {
	privateKey ed25519.PrivateKey
}

// NewSigner wraps a parsed Ed25519 private key.
func NewSigner(privateKey ed25519.PrivateKey) (*Signer, error) {
	if len(privateKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("token.new_signer: invalid private key length %d", len(privateKey))
	}
	return &Signer{privateKey: privateKey}, nil
}

// Sign serializes {uid, ts, for} and signs the serialized bytes.
func (signer *Signer) Sign(userID string, timestamp int64, purpose string) string {
	data, marshalErr := json.Marshal(Payload{UID: userID, TS: timestamp, For: purpose})
	if marshalErr != nil {
		// Payload contains only strings and an int64; Marshal cannot fail.
		panic(marshalErr)
	}
	signature := ed25519.Sign(signer.privateKey, data)
	return base64.RawURLEncoding.EncodeToString(data) + "." + base64.RawURLEncoding.EncodeToString(signature)
}

// Verify checks a transmitted token against the public key and the expected
// purpose. The signature is verified against the transmitted first-segment
// bytes, never a re-encoded copy.
func Verify(publicKey ed25519.PublicKey, tokenString string, expectedPurpose string) (Payload, error) {
	parts := strings.Split(tokenString, ".")
	if len(parts) != 2 {
		return Payload{}, fmt.Errorf("token.verify: wrong number of parts: %w", ErrMalformedToken)
	}

	data, dataErr := decodeSegment(parts[0])
	signature, signatureErr := decodeSegment(parts[1])
	if dataErr != nil || signatureErr != nil {
		return Payload{}, fmt.Errorf("token.verify: undecodable segment: %w", ErrMalformedToken)
	}

	var fields map[string]interface{}
	if unmarshalErr := json.Unmarshal(data, &fields); unmarshalErr != nil || fields == nil {
		return Payload{}, fmt.Errorf("token.verify: payload is not a JSON object: %w", ErrMalformedToken)
	}

	purpose, _ := fields["for"].(string)
	if purpose != expectedPurpose {
		return Payload{}, fmt.Errorf("token.verify: %w", ErrWrongPurpose)
	}

	if len(signature) != ed25519.SignatureSize {
		return Payload{}, fmt.Errorf("token.verify: %w", ErrInvalidSignatureLength)
	}

	if !ed25519.Verify(publicKey, data, signature) {
		return Payload{}, fmt.Errorf("token.verify: %w", ErrSignatureMismatch)
	}

	userIDValue, hasUserID := fields["uid"]
	if !hasUserID {
		return Payload{}, fmt.Errorf("token.verify: uid: %w", ErrMissingField)
	}
	userID, userIDIsString := userIDValue.(string)
	if !userIDIsString {
		return Payload{}, fmt.Errorf("token.verify: uid: %w", ErrWrongFieldType)
	}
	timestampValue, hasTimestamp := fields["ts"]
	if !hasTimestamp {
		return Payload{}, fmt.Errorf("token.verify: ts: %w", ErrMissingField)
	}
	timestamp, timestampIsNumber := timestampValue.(float64)
	if !timestampIsNumber {
		return Payload{}, fmt.Errorf("token.verify: ts: %w", ErrWrongFieldType)
	}

	return Payload{UID: userID, TS: int64(timestamp), For: purpose}, nil
}

// decodeSegment accepts both base64url and standard base64, padded or not.
// Older token generators used the standard alphabet with padding stripped.
func decodeSegment(segment string) ([]byte, error) {
	trimmed := strings.TrimRight(segment, "=")
	if decoded, err := base64.RawURLEncoding.DecodeString(trimmed); err == nil {
		return decoded, nil
	}
	return base64.RawStdEncoding.DecodeString(trimmed)
}
