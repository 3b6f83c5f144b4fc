// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Waypost Contributors

// Package sanitize normalizes untrusted strings into values that are safe to
// use as document keys or stored text. All functions are pure: the same input
// always yields the same output.
package sanitize

import (
	"errors"
	"strings"
)

// MaxKeyLength is the maximum length of a sanitized key, in runes.
const MaxKeyLength = 200

// ErrEmpty is returned when nothing remains after sanitization.
var ErrEmpty = errors.New("empty after sanitization")

// keyReplacer replaces path, query, and fragment separators, which are
// structurally unsafe in document IDs and URLs.
var keyReplacer = strings.NewReplacer("/", "-", "?", "-", "#", "-", "&", "-")

// Key sanitizes a string for use as a document key. Unsafe separators become
// hyphens, control characters are stripped, surrounding whitespace and dots
// are trimmed, and the result is truncated to MaxKeyLength runes.
// Returns ErrEmpty if nothing remains.
func Key(input string) (string, error) {
	s := keyReplacer.Replace(input)
	s = stripControl(s)
	s = strings.TrimSpace(s)
	// Leading dots are reserved by document stores; trailing dots are trimmed
	// for symmetry.
	s = strings.Trim(s, ".")
	s = truncate(s, MaxKeyLength)
	if s == "" {
		return "", ErrEmpty
	}
	return s, nil
}

// EmailKey sanitizes an email address for use as a document key. It applies
// the same rules as Key; '@' and interior '.' are not in the unsafe set, so
// the result remains a recognizable address.
// Returns ErrEmpty if nothing remains.
func EmailKey(input string) (string, error) {
	s, err := Key(input)
	if err != nil {
		return "", err
	}
	return s, nil
}

// FreeText sanitizes descriptive text for storage: control characters are
// stripped, surrounding whitespace is trimmed, and the result is truncated to
// maxLength runes. Unlike Key it never fails; invalid input yields "".
func FreeText(input string, maxLength int) string {
	s := stripControl(input)
	s = strings.TrimSpace(s)
	return truncate(s, maxLength)
}

// stripControl removes C0 and C1 control characters, including DEL.
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || (r >= 0x7F && r <= 0x9F) {
			return -1
		}
		return r
	}, s)
}

func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
