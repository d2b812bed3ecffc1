// Package auth signs and verifies admin API requests with ed25519 over
// a canonical request string, so the pool-stats and webdriver-validate
// endpoints can be exposed without a full identity layer.
package auth

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// signatureWindow bounds how far a request timestamp may drift.
const signatureWindow = 5 * time.Minute

// RequestSigner signs admin API requests
type RequestSigner struct {
	privateKey ed25519.PrivateKey
}

// NewRequestSigner creates a signer from a base64-encoded private key
func NewRequestSigner(privateKeyBase64 string) (*RequestSigner, error) {
	privateKeyBytes, err := base64.StdEncoding.DecodeString(privateKeyBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key: %w", err)
	}

	if len(privateKeyBytes) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid private key size: expected %d, got %d", ed25519.PrivateKeySize, len(privateKeyBytes))
	}

	return &RequestSigner{
		privateKey: ed25519.PrivateKey(privateKeyBytes),
	}, nil
}

// SignRequest creates the signature headers for a request
func (s *RequestSigner) SignRequest(method, path string, body []byte) (map[string]string, error) {
	timestampStr := strconv.FormatInt(time.Now().Unix(), 10)
	canonicalRequest := canonicalize(method, path, timestampStr, body)

	signature := ed25519.Sign(s.privateKey, []byte(canonicalRequest))
	signatureB64 := base64.StdEncoding.EncodeToString(signature)

	return map[string]string{
		"X-API-Signature": fmt.Sprintf("ed25519=%s", signatureB64),
		"X-API-Timestamp": timestampStr,
	}, nil
}

// SignatureVerifier verifies admin API request signatures
type SignatureVerifier struct {
	publicKey ed25519.PublicKey
}

// NewSignatureVerifier creates a verifier from a base64-encoded public key
func NewSignatureVerifier(publicKeyBase64 string) (*SignatureVerifier, error) {
	publicKeyBytes, err := base64.StdEncoding.DecodeString(publicKeyBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode public key: %w", err)
	}

	if len(publicKeyBytes) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid public key size: expected %d, got %d", ed25519.PublicKeySize, len(publicKeyBytes))
	}

	return &SignatureVerifier{
		publicKey: ed25519.PublicKey(publicKeyBytes),
	}, nil
}

// VerifyRequest checks the signature and timestamp headers of a request
func (v *SignatureVerifier) VerifyRequest(method, path, signatureHeader, timestampHeader string, body []byte) error {
	if len(signatureHeader) < 9 || signatureHeader[:8] != "ed25519=" {
		return fmt.Errorf("invalid signature format")
	}

	signature, err := base64.StdEncoding.DecodeString(signatureHeader[8:])
	if err != nil {
		return fmt.Errorf("failed to decode signature: %w", err)
	}

	timestamp, err := strconv.ParseInt(timestampHeader, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp: %w", err)
	}

	timeDiff := time.Since(time.Unix(timestamp, 0))
	if timeDiff < 0 {
		timeDiff = -timeDiff
	}
	if timeDiff > signatureWindow {
		return fmt.Errorf("timestamp outside allowed window")
	}

	canonicalRequest := canonicalize(method, path, timestampHeader, body)
	if !ed25519.Verify(v.publicKey, []byte(canonicalRequest), signature) {
		return fmt.Errorf("signature verification failed")
	}

	return nil
}

func canonicalize(method, path, timestamp string, body []byte) string {
	bodyHash := sha256.Sum256(body)
	return fmt.Sprintf("%s\n%s\n\n%s\nsha256:%x", method, path, timestamp, bodyHash)
}
