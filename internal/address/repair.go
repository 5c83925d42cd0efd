package address

import (
	"regexp"
	"strings"

	"github.com/emersion/go-message/mail"

	"github.com/felo/mailtext/internal/charset"
	"github.com/felo/mailtext/internal/decoder"
)

var (
	bracketed = regexp.MustCompile(`<(.*)>`)
	quoted    = regexp.MustCompile(`"(.*)"`)
)

// Repairer rebuilds address lists that a header parser split incorrectly
type Repairer struct {
	dec *decoder.HeaderDecoder
	reg *charset.Registry
}

// NewRepairer creates a repairer that decodes display names with dec
func NewRepairer(dec *decoder.HeaderDecoder, reg *charset.Registry) *Repairer {
	return &Repairer{dec: dec, reg: reg}
}

// Repair reconciles host, the addresses produced by a header parser, with
// the raw header values they came from. When the two disagree on the number
// of addresses every address is rebuilt from raw. Otherwise only entries
// whose raw text is risky are rebuilt and the rest are taken from host.
func (r *Repairer) Repair(host []Address, raw []string) ([]Address, error) {
	parts := Split(raw)

	hostStrings := make([]string, len(host))
	for i, a := range host {
		hostStrings[i] = a.String()
	}
	hostParts := Split([]string{strings.Join(hostStrings, ", ")})

	out := make([]Address, 0, len(parts))
	if len(hostParts) != len(parts) || len(host) != len(parts) {
		for _, p := range parts {
			a, err := r.FromRaw(p)
			if err != nil {
				return nil, err
			}
			out = append(out, a)
		}
		return out, nil
	}

	for i, p := range parts {
		if !r.risky(p) {
			out = append(out, host[i])
			continue
		}
		a, err := r.FromRaw(p)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// risky reports whether the host parser is likely to have decoded raw
// wrongly: a folded UTF-8 value, or a charset alias it does not remap.
func (r *Repairer) risky(raw string) bool {
	if strings.Contains(strings.ToLower(raw), "utf-8") && strings.Contains(raw, "\r\n") {
		return true
	}
	return r.reg.NeedsRemap(raw)
}

// FromRaw builds an address from one raw list entry. The email is the text
// inside angle brackets, or the whole entry. The name is the text inside
// double quotes, else the text before the angle brackets, else empty when
// the entry is a bare address.
func (r *Repairer) FromRaw(raw string) (Address, error) {
	text := r.dec.DecodeHeaderValue(raw)
	text = strings.TrimSpace(strings.NewReplacer("\r", "", "\n", "").Replace(text))

	email := text
	if m := bracketed.FindStringSubmatch(text); m != nil {
		email = strings.TrimSpace(m[1])
	}

	// Only quotes present in raw delimit the name. A quote decoded out of an
	// encoded word is part of it.
	var name string
	hasQuoted := false
	if strings.Contains(raw, `"`) {
		if m := quoted.FindStringSubmatch(text); m != nil {
			name, hasQuoted = unescape(m[1]), true
		}
	}

	lt := strings.IndexByte(text, '<')
	switch {
	case hasQuoted:
	case lt > 0:
		name = strings.TrimSpace(text[:lt])
	case lt == 0:
	default:
		if _, err := mail.ParseAddress(text); err != nil {
			name = text
		}
	}

	if _, err := mail.ParseAddress(email); err != nil {
		return Address{}, FormatError{Raw: raw, Err: err}
	}
	return Address{Email: email, Name: name}, nil
}

func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}
