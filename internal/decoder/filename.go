package decoder

import (
	"net/url"
	"strings"

	"github.com/felo/mailtext/internal/charset"
)

// fields whose parameters may carry a file name, in lookup order
var filenameFields = []string{"content-disposition", "content-type"}

// DecodeFileNameParameter extracts the attachment file name from a block of
// header lines. A filename parameter is preferred over name. RFC 2231
// continuations are joined in numeric order; extended segments are
// percent-decoded in the charset declared by the first segment. A plain
// value holding encoded words is decoded like a header value. The result
// is empty when no file name is present or it cannot be decoded.
func (d *HeaderDecoder) DecodeFileNameParameter(block string) string {
	params := d.collectParams(block)

	for _, key := range []string{"filename", "name"} {
		if v, ok := d.paramValue(params, key); ok {
			return v
		}
	}
	return ""
}

// collectParams returns the parameters of the file name bearing fields.
// A block without any header field names is read as a bare parameter list.
func (d *HeaderDecoder) collectParams(block string) []token {
	unfolded := fold.ReplaceAllString(block, "$1")

	byField := make(map[string]string)
	for _, line := range strings.FieldsFunc(unfolded, func(r rune) bool { return r == '\r' || r == '\n' }) {
		colon := strings.IndexByte(line, ':')
		if colon <= 0 {
			continue
		}
		field := strings.ToLower(strings.TrimSpace(line[:colon]))
		if _, seen := byField[field]; !seen {
			byField[field] = line[colon+1:]
		}
	}

	var toks []token
	found := false
	for _, field := range filenameFields {
		if v, ok := byField[field]; ok {
			toks = append(toks, lexParams(v)...)
			found = true
		}
	}
	if !found {
		toks = lexParams(unfolded)
	}
	return toks
}

func (d *HeaderDecoder) paramValue(params []token, key string) (string, bool) {
	if segs := segments(params, key); len(segs) > 0 {
		return d.joinSegments(segs), true
	}

	tok, ok := single(params, key)
	if !ok {
		return "", false
	}
	if tok.extended {
		return d.decodeExtended(tok.value), true
	}

	value := strings.TrimSpace(tok.value)
	if strings.Contains(value, "=?") {
		return d.DecodeHeaderValue(value), true
	}
	return value, true
}

// joinSegments concatenates continuation segments. When any segment is
// extended the joined bytes are decoded in the charset of the first one.
func (d *HeaderDecoder) joinSegments(segs []token) string {
	extended := false
	for _, seg := range segs {
		extended = extended || seg.extended
	}

	if !extended {
		var sb strings.Builder
		for _, seg := range segs {
			sb.WriteString(seg.value)
		}
		value := strings.TrimSpace(sb.String())
		if strings.Contains(value, "=?") {
			return d.DecodeHeaderValue(value)
		}
		return value
	}

	var name charset.Name
	var buf []byte
	for i, seg := range segs {
		value := seg.value
		if i == 0 && seg.extended {
			var ok bool
			if name, value, ok = splitExtended(value); !ok {
				return ""
			}
		}
		if i == len(segs)-1 {
			value = strings.TrimSpace(value)
		}
		if !seg.extended {
			buf = append(buf, value...)
			continue
		}
		b, err := url.PathUnescape(value)
		if err != nil {
			return ""
		}
		buf = append(buf, b...)
	}
	return d.decodeBytes(name, buf)
}

// decodeExtended decodes a single charset'lang'value parameter
func (d *HeaderDecoder) decodeExtended(v string) string {
	name, value, ok := splitExtended(v)
	if !ok {
		return ""
	}
	b, err := url.PathUnescape(strings.TrimSpace(value))
	if err != nil {
		return ""
	}
	return d.decodeBytes(name, []byte(b))
}

// decodeBytes returns "" for charsets the registry does not recognize
func (d *HeaderDecoder) decodeBytes(name charset.Name, b []byte) string {
	if name == "" {
		name = charset.UTF8
	}
	canonical, ok := d.reg.Canonicalize(string(name))
	if !ok {
		return ""
	}
	text, err := d.reg.DecodeBytes(canonical, b)
	if err != nil {
		return ""
	}
	return text
}

// splitExtended splits charset'lang'value; the language tag is dropped
func splitExtended(v string) (charset.Name, string, bool) {
	parts := strings.SplitN(v, "'", 3)
	if len(parts) != 3 {
		return "", "", false
	}
	return charset.Name(strings.TrimSpace(parts[0])), parts[2], true
}
