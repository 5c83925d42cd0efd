package decoder

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"

	"github.com/felo/mailtext/internal/charset"
)

// fold matches a header line break followed by folding whitespace
var fold = regexp.MustCompile(`\r?\n([ \t])`)

// HeaderDecoder decodes RFC 2047 encoded words and RFC 2231 parameters
type HeaderDecoder struct {
	reg *charset.Registry
}

// NewHeaderDecoder creates a header decoder backed by reg
func NewHeaderDecoder(reg *charset.Registry) *HeaderDecoder {
	return &HeaderDecoder{reg: reg}
}

// DecodeHeaderValue decodes every encoded word in raw. Consecutive words in
// the same charset are joined at the byte level before charset decoding,
// which repairs multibyte characters split across words. Words in an
// unknown charset or with an unknown encoding are kept as they are. If any
// word fails to decode, raw is returned unchanged.
func (d *HeaderDecoder) DecodeHeaderValue(raw string) string {
	if !strings.Contains(raw, "=?") {
		return raw
	}

	out, err := d.decode(raw)
	if err != nil {
		return raw
	}
	return out
}

func (d *HeaderDecoder) decode(raw string) (string, error) {
	value := fold.ReplaceAllString(strings.TrimSpace(raw), "$1")
	toks := lexWords(value)

	var sb strings.Builder
	for i := 0; i < len(toks); i++ {
		tok := toks[i]

		if tok.kind == literalToken {
			// Whitespace between two encoded words is not part of the text
			if isBlank(tok.text) && i > 0 && i+1 < len(toks) && d.decodable(toks[i-1]) && d.decodable(toks[i+1]) {
				continue
			}
			sb.WriteString(tok.text)
			continue
		}

		name, ok := d.resolve(tok)
		if !ok {
			sb.WriteString(tok.text)
			continue
		}

		buf, err := wordBytes(tok)
		if err != nil {
			return "", err
		}

		j := i + 1
		for {
			k := j
			if k < len(toks) && toks[k].kind == literalToken && isBlank(toks[k].text) {
				k++
			}
			if k >= len(toks) {
				break
			}
			next, ok := d.resolve(toks[k])
			if !ok || !next.Equal(name) {
				break
			}
			b, err := wordBytes(toks[k])
			if err != nil {
				return "", err
			}
			buf = append(buf, b...)
			j = k + 1
		}

		text, err := d.reg.DecodeBytes(name, buf)
		if err != nil {
			return "", err
		}
		sb.WriteString(text)
		i = j - 1
	}
	return sb.String(), nil
}

func (d *HeaderDecoder) decodable(tok token) bool {
	_, ok := d.resolve(tok)
	return ok
}

// resolve returns the charset to decode an encoded word with. Only charsets
// the registry recognizes are decoded.
func (d *HeaderDecoder) resolve(tok token) (charset.Name, bool) {
	if tok.kind != wordToken || (tok.encoding != 'B' && tok.encoding != 'Q') {
		return "", false
	}
	return d.reg.Canonicalize(tok.charset)
}

// wordBytes undoes the transfer encoding of an encoded word
func wordBytes(tok token) ([]byte, error) {
	switch tok.encoding {
	case 'B':
		return decodeB(tok.payload)
	case 'Q':
		return decodeQ(tok.payload)
	}
	return nil, MalformedEncodingError{Encoding: string(tok.encoding), Err: fmt.Errorf("unknown encoding %q", tok.encoding)}
}

// decodeB accepts padded and unpadded base64 and ignores embedded whitespace
func decodeB(payload string) ([]byte, error) {
	payload = strings.Join(strings.Fields(payload), "")
	b, err := base64.StdEncoding.DecodeString(payload)
	if err == nil {
		return b, nil
	}
	if b, rawErr := base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "=")); rawErr == nil {
		return b, nil
	}
	return nil, MalformedEncodingError{Encoding: Base64, Err: err}
}

// decodeQ decodes the header flavour of quoted-printable, where "_" is a space
func decodeQ(payload string) ([]byte, error) {
	out := make([]byte, 0, len(payload))
	for i := 0; i < len(payload); i++ {
		c := payload[i]
		switch c {
		case '_':
			out = append(out, ' ')
		case '=':
			if i+2 >= len(payload) {
				return nil, MalformedEncodingError{Encoding: QuotedPrintable, Err: fmt.Errorf("truncated escape at offset %d", i)}
			}
			hi, ok1 := fromHex(payload[i+1])
			lo, ok2 := fromHex(payload[i+2])
			if !ok1 || !ok2 {
				return nil, MalformedEncodingError{Encoding: QuotedPrintable, Err: fmt.Errorf("invalid escape %q", payload[i:i+3])}
			}
			out = append(out, hi<<4|lo)
			i += 2
		default:
			out = append(out, c)
		}
	}
	return out, nil
}

func fromHex(b byte) (byte, bool) {
	switch {
	case '0' <= b && b <= '9':
		return b - '0', true
	case 'A' <= b && b <= 'F':
		return b - 'A' + 10, true
	case 'a' <= b && b <= 'f':
		return b - 'a' + 10, true
	}
	return 0, false
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
