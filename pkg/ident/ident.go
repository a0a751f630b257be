// Copyright (c) 2026 Keyra. All rights reserved.

// Package ident normalizes actor identifiers (emails, external identity keys)
// before lookup and storage.
//
// # Why normalize?
//
// The same visible identifier can arrive in different Unicode forms
// (composed vs decomposed accents, fullwidth digits, mixed case). Without a
// canonical form, "User@Example.COM" and "user@example.com" would create
// two distinct actors and identifier lookups would silently miss. Every
// identifier is therefore folded to one canonical representation at the
// boundary.
package ident

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// folder performs Unicode case folding, which is stricter than a plain
// ToLower (it also collapses e.g. the Kelvin sign onto 'k').
var folder = cases.Fold()

// Normalize returns the canonical form of an identifier:
// trimmed, NFKC-normalized, and case-folded.
func Normalize(identifier string) string {
	trimmed := strings.TrimSpace(identifier)
	return folder.String(norm.NFKC.String(trimmed))
}

// Equal reports whether two identifiers are the same after normalization.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}
