package domain

import "strings"

// FormatName shortens a "Display (Nickname)" string to its nickname. Strings
// without a non-empty parenthetical are returned unchanged.
func FormatName(name string) string {
	for s := name; ; {
		open := strings.IndexByte(s, '(')
		if open < 0 {
			return name
		}
		s = s[open+1:]
		if end := strings.IndexByte(s, ')'); end > 0 {
			return s[:end]
		} else if end < 0 {
			return name
		}
	}
}
