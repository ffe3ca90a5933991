// Package sso implements the EVE SSO authorization flow for a public
// client: PKCE verifier/challenge generation, the ephemeral loopback
// listener that captures the provider redirect, and the code exchange
// plus identity verification that produce a stored credential.
package sso

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

const (
	// verifierBytes is the number of random bytes behind the PKCE code
	// verifier. 32 bytes is 256 bits of entropy.
	verifierBytes = 32

	// stateBytes is the number of random bytes behind the state parameter.
	// 32 bytes encodes to 43 base64url characters.
	stateBytes = 32
)

// GeneratePKCE returns a fresh code verifier and its S256 challenge.
// The verifier is 32 random bytes, base64url-encoded without padding; the
// challenge is the base64url-encoded SHA-256 of the verifier string. Only
// the challenge travels in the authorization request; the verifier is held
// back for the code exchange.
func GeneratePKCE() (verifier, challenge string, err error) {
	buf := make([]byte, verifierBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generating PKCE verifier: %w", err)
	}

	verifier = base64.RawURLEncoding.EncodeToString(buf)

	hash := sha256.Sum256([]byte(verifier))
	challenge = base64.RawURLEncoding.EncodeToString(hash[:])

	return verifier, challenge, nil
}

// GenerateState returns a random state parameter binding the callback to
// this authorization attempt.
func GenerateState() (string, error) {
	buf := make([]byte, stateBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating state: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}
