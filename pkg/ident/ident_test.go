// Copyright (c) 2026 Keyra. All rights reserved.

package ident_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/keyrahq/keyra/pkg/ident"
)

/*
TestNormalize folds case, trims whitespace, and collapses Unicode
compatibility forms so equivalent identifiers map to one canonical key.
*/
func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercase_passthrough", "ana@example.com", "ana@example.com"},
		{"case_folded", "Ana@Example.COM", "ana@example.com"},
		{"trimmed", "  ana@example.com  ", "ana@example.com"},
		{"fullwidth_compatibility", "ａｎａ", "ana"},
		{"ligature", "ﬁle", "file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ident.Normalize(tt.input))
		})
	}
}

/*
TestEqual compares identifiers under normalization.
*/
func TestEqual(t *testing.T) {
	assert.True(t, ident.Equal("Ana@Example.com", "ana@example.com"))
	assert.False(t, ident.Equal("ana@example.com", "bob@example.com"))
}
