package charset

// IsPrintable reports whether s is free of characters that signal a wrong
// decode: C0 controls other than LF, DEL through NBSP, and the soft hyphen.
func IsPrintable(s string) bool {
	for _, r := range s {
		switch {
		case r <= 31 && r != '\n':
			return false
		case r >= 127 && r <= 160:
			return false
		case r == 173:
			return false
		}
	}
	return true
}
