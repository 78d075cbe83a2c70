// Copyright 2026 The OrderMap Authors
// SPDX-License-Identifier: Apache-2.0

// Package textutils normalizes free text for matching.
package textutils

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// LowerASCIIFolding normalizes a string by removing accents, lowercasing, and trimming spaces.
func LowerASCIIFolding(s string) string {
	s, _, _ = transform.String(
		transform.Chain(
			norm.NFD,
			runes.Remove(runes.In(unicode.Mn)),
			norm.NFC,
		),
		strings.TrimSpace(strings.ToLower(s)),
	)

	return s
}

// MatchKey folds s with LowerASCIIFolding, drops dots and collapses any other
// punctuation and whitespace runs into single spaces: "U.S.A." becomes "usa".
func MatchKey(s string) string {
	s = LowerASCIIFolding(s)

	s = strings.Map(func(r rune) rune {
		switch {
		case r == '.':
			return -1
		case unicode.IsLetter(r), unicode.IsDigit(r):
			return r
		default:
			return ' '
		}
	}, s)

	return strings.Join(strings.Fields(s), " ")
}
