package bookpipe

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxSlugLen = 80

var slugSeparators = regexp.MustCompile(`[^a-z0-9]+`)

// slugify produces a lower-cased, diacritic-stripped, filesystem-safe slug
// used for deduplication and storage paths.
func slugify(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err == nil {
		s = stripped
	}
	s = strings.ToLower(s)
	s = slugSeparators.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > maxSlugLen {
		s = strings.Trim(s[:maxSlugLen], "-")
	}
	if s == "" {
		return "untitled"
	}
	return s
}

// normalizeISBN strips separators and validates the check digit. Returns ""
// for anything that is not a valid ISBN-10 or ISBN-13.
func normalizeISBN(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(strings.ToLower(raw), "urn:isbn:")
	raw = strings.TrimPrefix(raw, "isbn:")
	var sb strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' || r == 'x' || r == 'X' {
			sb.WriteRune(unicode.ToUpper(r))
		}
	}
	isbn := sb.String()
	switch len(isbn) {
	case 10:
		if validISBN10(isbn) {
			return isbn
		}
	case 13:
		if validISBN13(isbn) {
			return isbn
		}
	}
	return ""
}

func validISBN10(isbn string) bool {
	sum := 0
	for i, r := range isbn {
		var v int
		switch {
		case r >= '0' && r <= '9':
			v = int(r - '0')
		case r == 'X' && i == 9:
			v = 10
		default:
			return false
		}
		sum += (10 - i) * v
	}
	return sum%11 == 0
}

func validISBN13(isbn string) bool {
	sum := 0
	for i, r := range isbn {
		if r < '0' || r > '9' {
			return false
		}
		v := int(r - '0')
		if i%2 == 1 {
			v *= 3
		}
		sum += v
	}
	return sum%10 == 0
}

var yearRe = regexp.MustCompile(`\b([12]\d{3})\b`)

// parseYear pulls the first plausible 4-digit year from a heterogeneous date
// string ("2003", "2003-04-01", "D:20030401...", "Tue Apr 1 2003").
func parseYear(raw string) int {
	m := yearRe.FindString(raw)
	if m == "" {
		// PDF dates: D:YYYYMMDD... glued to the prefix.
		if i := strings.Index(raw, "D:"); i >= 0 && len(raw) >= i+6 {
			m = yearRe.FindString(raw[i+2:i+6] + " ")
		}
	}
	if m == "" {
		return 0
	}
	y, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return y
}

// cleanWhitespace collapses all interior whitespace runs to single spaces.
func cleanWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate bounds a string to n bytes on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func utf8RuneStart(b byte) bool { return b&0xC0 != 0x80 }
