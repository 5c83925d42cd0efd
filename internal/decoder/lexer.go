package decoder

import (
	"sort"
	"strconv"
	"strings"
)

type tokenKind int

const (
	literalToken tokenKind = iota
	wordToken
	segmentToken
)

// token is one lexical unit of a header value or parameter list
type token struct {
	kind tokenKind
	text string // raw source text

	// encoded words
	charset  string
	encoding byte
	payload  string

	// parameters and their continuation segments; index is -1 for a
	// parameter that is not split.
	name     string
	index    int
	extended bool
	value    string
}

// lexWords splits s into literal spans and RFC 2047 encoded words.
// Adjacent literals are merged.
func lexWords(s string) []token {
	var toks []token
	for len(s) > 0 {
		start := strings.Index(s, "=?")
		if start < 0 {
			toks = appendLiteral(toks, s)
			break
		}

		w, n, ok := scanWord(s[start:])
		if !ok {
			toks = appendLiteral(toks, s[:start+2])
			s = s[start+2:]
			continue
		}
		if start > 0 {
			toks = appendLiteral(toks, s[:start])
		}
		toks = append(toks, w)
		s = s[start+n:]
	}
	return toks
}

func appendLiteral(toks []token, text string) []token {
	if n := len(toks); n > 0 && toks[n-1].kind == literalToken {
		toks[n-1].text += text
		return toks
	}
	return append(toks, token{kind: literalToken, text: text})
}

// scanWord reads one encoded word at the start of s and returns it with the
// number of bytes consumed. The terminator search begins after the
// "?X?" marker, so a Q payload that starts with "=" is not mistaken for
// the end of the word.
func scanWord(s string) (token, int, bool) {
	if !strings.HasPrefix(s, "=?") {
		return token{}, 0, false
	}

	q := strings.IndexByte(s[2:], '?')
	if q <= 0 {
		return token{}, 0, false
	}
	cs := s[2 : 2+q]
	if strings.ContainsAny(cs, " \t\r\n") {
		return token{}, 0, false
	}

	marker := 2 + q
	if len(s) < marker+3 || s[marker+2] != '?' {
		return token{}, 0, false
	}
	enc := s[marker+1]

	body := marker + 3
	end := strings.Index(s[body:], "?=")
	if end < 0 {
		return token{}, 0, false
	}
	n := body + end + 2

	// RFC 2231 allows a language suffix: charset*lang
	if i := strings.IndexByte(cs, '*'); i >= 0 {
		cs = cs[:i]
	}

	return token{
		kind:     wordToken,
		text:     s[:n],
		charset:  cs,
		encoding: upper(enc),
		payload:  s[body : body+end],
	}, n, true
}

func upper(b byte) byte {
	if 'a' <= b && b <= 'z' {
		return b - 'a' + 'A'
	}
	return b
}

// lexParams splits a parameter list such as `attachment; filename*0="a"; filename*1="b"`
// into parameter tokens. Values are unquoted; the leading disposition or
// media type is skipped.
func lexParams(s string) []token {
	var toks []token
	for _, part := range splitUnquoted(s, ';') {
		eq := strings.IndexByte(part, '=')
		if eq < 0 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(part[:eq]))
		if key == "" {
			continue
		}
		tok := token{
			kind:  segmentToken,
			text:  part,
			index: -1,
			value: unquote(strings.TrimSpace(part[eq+1:])),
		}

		if strings.HasSuffix(key, "*") {
			tok.extended = true
			key = strings.TrimSuffix(key, "*")
		}
		if i := strings.LastIndexByte(key, '*'); i >= 0 {
			if n, err := strconv.Atoi(key[i+1:]); err == nil && n >= 0 {
				tok.index = n
				key = key[:i]
			}
		}
		tok.name = key
		toks = append(toks, tok)
	}
	return toks
}

// segments returns the continuation segments of the named parameter in
// numeric order.
func segments(toks []token, name string) []token {
	var segs []token
	for _, tok := range toks {
		if tok.kind == segmentToken && tok.name == name && tok.index >= 0 {
			segs = append(segs, tok)
		}
	}
	sort.SliceStable(segs, func(i, j int) bool { return segs[i].index < segs[j].index })
	return segs
}

// single returns the named parameter when it is not split into segments
func single(toks []token, name string) (token, bool) {
	for _, tok := range toks {
		if tok.kind == segmentToken && tok.name == name && tok.index < 0 {
			return tok, true
		}
	}
	return token{}, false
}

// splitUnquoted splits s on sep, ignoring separators inside double quotes.
// A backslash escapes the next character within quotes.
func splitUnquoted(s string, sep byte) []string {
	var parts []string
	inQuote, escaped := false, false
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inQuote:
			escaped = true
		case c == '"':
			inQuote = !inQuote
		case c == sep && !inQuote:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
		if strings.Contains(s, `\`) {
			var sb strings.Builder
			for i := 0; i < len(s); i++ {
				if s[i] == '\\' && i+1 < len(s) {
					i++
				}
				sb.WriteByte(s[i])
			}
			s = sb.String()
		}
	}
	return s
}
