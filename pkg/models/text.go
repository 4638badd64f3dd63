package models

import "unicode/utf8"

// CheckText rejects text that an XML 1.0 document cannot carry: invalid
// UTF-8, and control characters other than tab, newline and carriage return.
func CheckText(what, s string) error {
	if !utf8.ValidString(s) {
		return invalidf("%s is not valid UTF-8", what)
	}
	for _, r := range s {
		if !isXMLChar(r) {
			return invalidf("%s contains character %U", what, r)
		}
	}
	return nil
}

func isXMLChar(r rune) bool {
	return r == '\t' || r == '\n' || r == '\r' ||
		r >= 0x20 && r <= 0xD7FF ||
		r >= 0xE000 && r <= 0xFFFD ||
		r >= 0x10000 && r <= utf8.MaxRune
}
