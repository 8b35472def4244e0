// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package normalize canonicalizes user-typed identifiers before lookup and storage.
//
// # Usage
//
// Usernames and emails are compared case-insensitively. Normalizing once at the
// boundary lets the store rely on plain unique indexes.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Identifier converts a username or email into its canonical form.
//
// # Transformation Pipeline
//
// 1. Trims surrounding whitespace.
// 2. Normalizes to NFKC (compatibility forms such as full-width letters fold to ASCII).
// 3. Drops invisible format characters (zero-width joiners and the like).
// 4. Applies Unicode case folding.
func Identifier(s string) string {
	t := transform.Chain(norm.NFKC, transform.RemoveFunc(isFormat))
	result, _, err := transform.String(t, strings.TrimSpace(s))
	if err != nil {
		result = strings.TrimSpace(s)
	}
	return cases.Fold().String(result)
}

// Email canonicalizes an address and returns nil for a blank input.
func Email(s string) *string {
	folded := Identifier(s)
	if folded == "" {
		return nil
	}
	return &folded
}

// isFormat reports whether r is a Unicode format character (category Cf).
func isFormat(r rune) bool {
	return unicode.Is(unicode.Cf, r)
}
