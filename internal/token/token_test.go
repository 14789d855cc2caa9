package token

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestKeypair(t *testing.T) (ed25519.PublicKey, *Signer) {
	t.Helper()
	publicKey, privateKey, keyErr := ed25519.GenerateKey(rand.Reader)
	if keyErr != nil {
		t.Fatalf("generating keypair failed: %v", keyErr)
	}
	signer, signerErr := NewSigner(privateKey)
	if signerErr != nil {
		t.Fatalf("constructing signer failed: %v", signerErr)
	}
	return publicKey, signer
}

func TestSignVerifyRoundTrip(t *testing.T) {
	publicKey, signer := newTestKeypair(t)

	timestamp := time.Now().Unix()
	tokenString := signer.Sign("0123456789abcdef", timestamp, "settings")

	payload, verifyErr := Verify(publicKey, tokenString, "settings")
	if verifyErr != nil {
		t.Fatalf("verify failed: %v", verifyErr)
	}
	if payload.UID != "0123456789abcdef" {
		t.Fatalf("unexpected uid: %s", payload.UID)
	}
	if payload.TS != timestamp {
		t.Fatalf("expected ts %d, got %d", timestamp, payload.TS)
	}
	if payload.For != "settings" {
		t.Fatalf("unexpected purpose: %s", payload.For)
	}
}

func TestVerifyRejectsWrongPurpose(t *testing.T) {
	publicKey, signer := newTestKeypair(t)

	tokenString := signer.Sign("0123456789abcdef", time.Now().Unix(), "settings")

	_, verifyErr := Verify(publicKey, tokenString, "game")
	if !errors.Is(verifyErr, ErrWrongPurpose) {
		t.Fatalf("expected ErrWrongPurpose, got %v", verifyErr)
	}
}

func TestVerifyRejectsTamperedData(t *testing.T) {
	publicKey, signer := newTestKeypair(t)

	tokenString := signer.Sign("0123456789abcdef", time.Now().Unix(), "game")
	parts := strings.Split(tokenString, ".")
	data, decodeErr := base64.RawURLEncoding.DecodeString(parts[0])
	if decodeErr != nil {
		t.Fatalf("decoding data segment failed: %v", decodeErr)
	}

	// Flip one byte inside the uid value.
	data[10] ^= 0x01
	tampered := base64.RawURLEncoding.EncodeToString(data) + "." + parts[1]

	_, verifyErr := Verify(publicKey, tampered, "game")
	if !errors.Is(verifyErr, ErrSignatureMismatch) {
		t.Fatalf("expected ErrSignatureMismatch, got %v", verifyErr)
	}
}

func TestVerifyRejectsShortSignatureBeforeSignatureMath(t *testing.T) {
	publicKey, signer := newTestKeypair(t)

	tokenString := signer.Sign("0123456789abcdef", time.Now().Unix(), "game")
	parts := strings.Split(tokenString, ".")
	shortSignature := base64.RawURLEncoding.EncodeToString([]byte("too-short"))

	_, verifyErr := Verify(publicKey, parts[0]+"."+shortSignature, "game")
	if !errors.Is(verifyErr, ErrInvalidSignatureLength) {
		t.Fatalf("expected ErrInvalidSignatureLength, got %v", verifyErr)
	}
}

func TestVerifyRejectsMalformedTokens(t *testing.T) {
	publicKey, signer := newTestKeypair(t)
	valid := signer.Sign("0123456789abcdef", time.Now().Unix(), "game")
	validParts := strings.Split(valid, ".")

	malformed := []string{
		"",
		"one-part-only",
		valid + ".extra",
		"!!notbase64!!." + validParts[1],
		base64.RawURLEncoding.EncodeToString([]byte("not json")) + "." + validParts[1],
		base64.RawURLEncoding.EncodeToString([]byte(`"a string"`)) + "." + validParts[1],
	}
	for _, tokenString := range malformed {
		if _, verifyErr := Verify(publicKey, tokenString, "game"); !errors.Is(verifyErr, ErrMalformedToken) {
			t.Fatalf("expected ErrMalformedToken for %q, got %v", tokenString, verifyErr)
		}
	}
}

func TestVerifyRejectsMissingAndMistypedFields(t *testing.T) {
	publicKey, privateKey, keyErr := ed25519.GenerateKey(rand.Reader)
	if keyErr != nil {
		t.Fatalf("generating keypair failed: %v", keyErr)
	}

	signRaw := func(jsonPayload string) string {
		data := []byte(jsonPayload)
		signature := ed25519.Sign(privateKey, data)
		return base64.RawURLEncoding.EncodeToString(data) + "." + base64.RawURLEncoding.EncodeToString(signature)
	}

	cases := []struct {
		name     string
		payload  string
		expected error
	}{
		{"missing uid", `{"ts":1,"for":"game"}`, ErrMissingField},
		{"missing ts", `{"uid":"abc","for":"game"}`, ErrMissingField},
		{"numeric uid", `{"uid":7,"ts":1,"for":"game"}`, ErrWrongFieldType},
		{"string ts", `{"uid":"abc","ts":"1","for":"game"}`, ErrWrongFieldType},
	}
	for _, testCase := range cases {
		_, verifyErr := Verify(publicKey, signRaw(testCase.payload), "game")
		if !errors.Is(verifyErr, testCase.expected) {
			t.Fatalf("%s: expected %v, got %v", testCase.name, testCase.expected, verifyErr)
		}
	}
}

func TestVerifyAcceptsStandardAlphabetSegments(t *testing.T) {
	publicKey, privateKey, keyErr := ed25519.GenerateKey(rand.Reader)
	if keyErr != nil {
		t.Fatalf("generating keypair failed: %v", keyErr)
	}

	data := []byte(`{"uid":"0123456789abcdef","ts":1700000000,"for":"game"}`)
	signature := ed25519.Sign(privateKey, data)
	legacy := base64.StdEncoding.EncodeToString(data) + "." + base64.StdEncoding.EncodeToString(signature)
	legacy = strings.ReplaceAll(legacy, "=", "")

	payload, verifyErr := Verify(publicKey, legacy, "game")
	if verifyErr != nil {
		t.Fatalf("verify of standard-alphabet token failed: %v", verifyErr)
	}
	if payload.UID != "0123456789abcdef" || payload.TS != 1700000000 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestKeyMarshalParseRoundTrip(t *testing.T) {
	publicKey, privateKey, keyErr := ed25519.GenerateKey(rand.Reader)
	if keyErr != nil {
		t.Fatalf("generating keypair failed: %v", keyErr)
	}

	encodedPrivate, marshalPrivateErr := MarshalPrivateKey(privateKey)
	if marshalPrivateErr != nil {
		t.Fatalf("marshal private failed: %v", marshalPrivateErr)
	}
	parsedPrivate, parsePrivateErr := ParsePrivateKey(encodedPrivate)
	if parsePrivateErr != nil {
		t.Fatalf("parse private failed: %v", parsePrivateErr)
	}
	if !privateKey.Equal(parsedPrivate) {
		t.Fatalf("private key did not survive round trip")
	}

	encodedPublic, marshalPublicErr := MarshalPublicKey(publicKey)
	if marshalPublicErr != nil {
		t.Fatalf("marshal public failed: %v", marshalPublicErr)
	}
	parsedPublic, parsePublicErr := ParsePublicKey(encodedPublic)
	if parsePublicErr != nil {
		t.Fatalf("parse public failed: %v", parsePublicErr)
	}
	if !publicKey.Equal(parsedPublic) {
		t.Fatalf("public key did not survive round trip")
	}
}
