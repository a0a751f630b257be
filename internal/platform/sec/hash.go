// Copyright (c) 2026 Keyra. All rights reserved.

package sec

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// # Secret Hashing

// HashSecret hashes a plain-text secret using the bcrypt algorithm.
func HashSecret(plainTextSecret string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(plainTextSecret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("sec: failed to hash secret: %w", err)
	}
	return string(hashedBytes), nil
}

// VerifySecret compares a plain-text secret with its stored bcrypt hash.
//
// It never returns an error: a mismatch, a malformed hash, or an empty hash
// all report false. bcrypt performs the comparison in constant time.
func VerifySecret(plainTextSecret, storedHash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(plainTextSecret))
	return err == nil
}

// # External Identity Verification

// VerifyExternalKey compares a presented external-identity key against the
// stored one for SSO-mapped actors that carry no local secret.
//
// Both values are digested before comparison so the check is constant-time
// and does not leak length information.
func VerifyExternalKey(presentedKey, storedKey string) bool {
	if storedKey == "" {
		return false
	}
	presented := sha256.Sum256([]byte(presentedKey))
	stored := sha256.Sum256([]byte(storedKey))
	return subtle.ConstantTimeCompare(presented[:], stored[:]) == 1
}

// # Token Hashing

// HashToken produces a one-way hex digest of a token for storage.
//
// Session rows persist only this digest — never the raw token — so a leaked
// database cannot be replayed against the API.
func HashToken(rawToken string) string {
	digest := sha256.Sum256([]byte(rawToken))
	return hex.EncodeToString(digest[:])
}

// TokenHashEqual compares a raw token against a stored digest in constant time.
func TokenHashEqual(rawToken, storedHash string) bool {
	computed := HashToken(rawToken)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}
