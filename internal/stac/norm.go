// Copyright (C) 2026 PDSSP contributors.
// See LICENSE for copying information.

package stac

import (
	"strings"
)

// NormID is the single canonical identifier normalization: lowercase,
// separators collapse to hyphens, everything outside [a-z0-9.-] is
// dropped, hyphen runs collapse, and leading or trailing hyphens are
// trimmed. "MARS GLOBAL SURVEYOR" becomes "mars-global-surveyor".
func NormID(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	lastHyphen := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.':
			b.WriteRune(r)
			lastHyphen = false
		case r == ' ', r == '_', r == '/', r == '-', r == ':':
			if !lastHyphen && b.Len() > 0 {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}
