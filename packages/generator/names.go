package generator

import (
	"strings"
	"unicode"
)

var honorifics = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "miss": true, "dr": true,
	"prof": true, "sir": true, "madam": true, "rev": true,
}

// uiChrome are author strings that come from feed UI furniture rather than a
// person's profile.
var uiChrome = map[string]bool{
	"sponsored": true, "suggested": true, "admin": true, "moderator": true,
	"anonymous": true, "member": true, "participant": true, "group": true,
	"expert": true, "verified": true, "page": true, "follow": true,
}

// FirstName extracts a usable first name from a scraped author string.
// It reports false when extraction fails and the caller should use a
// generic fallback.
func FirstName(author string) (string, bool) {
	fields := strings.Fields(strings.TrimSpace(author))
	if len(fields) == 0 {
		return "", false
	}

	first := strings.Trim(fields[0], ".,;:!\"'")
	if honorifics[strings.ToLower(first)] {
		if len(fields) < 2 {
			return "", false
		}
		first = strings.Trim(fields[1], ".,;:!\"'")
	}

	if len(first) < 2 || len(first) > 20 {
		return "", false
	}
	if uiChrome[strings.ToLower(first)] {
		return "", false
	}
	for _, r := range first {
		if !unicode.IsLetter(r) && r != '-' && r != '\'' {
			return "", false
		}
	}
	return first, true
}
