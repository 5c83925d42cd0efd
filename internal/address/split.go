package address

import "strings"

// Split breaks raw address header values on commas. Fragments are merged
// back together while a double quote is left open, so commas inside quoted
// display names do not split an address. Blank entries are dropped.
func Split(values []string) []string {
	var out []string
	for _, v := range values {
		pending := ""
		open := false
		for i, frag := range strings.Split(v, ",") {
			if open && i > 0 {
				pending += "," + frag
			} else {
				pending = frag
			}

			open = countQuotes(pending)%2 == 1
			if !open {
				out = appendNonBlank(out, pending)
				pending = ""
			}
		}
		if open {
			out = appendNonBlank(out, pending)
		}
	}
	return out
}

func appendNonBlank(out []string, s string) []string {
	if s = strings.TrimSpace(s); s != "" {
		out = append(out, s)
	}
	return out
}

// countQuotes counts double quotes that are not escaped with a backslash
func countQuotes(s string) int {
	n := 0
	escaped := false
	for i := 0; i < len(s); i++ {
		switch {
		case escaped:
			escaped = false
		case s[i] == '\\':
			escaped = true
		case s[i] == '"':
			n++
		}
	}
	return n
}
