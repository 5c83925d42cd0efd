package charset

import (
	"io"
	"regexp"
	"sort"
	"strings"

	gmcharset "github.com/emersion/go-message/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
)

// Name is a charset identifier as declared in a message or as resolved by a Registry.
// Names compare case-insensitively.
type Name string

// Canonical names produced by the default registry
const (
	UTF8              Name = "UTF-8"
	MS932             Name = "MS932"
	GB18030           Name = "GB18030"
	XWindowsISO2022JP Name = "X-WINDOWS-ISO2022JP"
	Windows1252       Name = "Windows-1252"
)

func (n Name) String() string { return string(n) }

// Equal reports whether n and o name the same charset, ignoring case
func (n Name) Equal(o Name) bool {
	return strings.EqualFold(string(n), string(o))
}

// Registry maps declared charset names to canonical ones and resolves
// canonical names to decoders. A Registry is immutable once built.
type Registry struct {
	tokens    []string
	aliases   map[string]Name
	canonical map[string]Name
	encodings map[string]encoding.Encoding

	aliasKeys []string
	cleaners  []*regexp.Regexp
}

// tokens are matched against lowercased input in this order; the first hit wins
var defaultTokens = []string{
	"iso-2022-jp",
	"shift_jis",
	"utf-8",
	"ms932",
	"gb2312",
	"gb18030",
	"iso-8859-1",
	"cp932",
}

var defaultAliases = map[string]Name{
	"iso-2022-jp": XWindowsISO2022JP,
	"iso2022jp":   XWindowsISO2022JP,
	"shift_jis":   MS932,
	"cp932":       MS932,
	"gb2312":      GB18030,
	"iso-8859-1":  Windows1252,
}

// canonical spellings for tokens that are not remapped
var defaultPassthrough = map[string]Name{
	"utf-8":   UTF8,
	"ms932":   MS932,
	"gb18030": GB18030,
}

var defaultEncodings = map[Name]encoding.Encoding{
	UTF8:              unicode.UTF8,
	MS932:             japanese.ShiftJIS,
	GB18030:           simplifiedchinese.GB18030,
	XWindowsISO2022JP: japanese.ISO2022JP,
	Windows1252:       charmap.Windows1252,
}

var defaultRegistry = NewRegistry()

func init() {
	// The host parser resolves charsets through go-message, so it gets the
	// same remapping as the core decoders.
	for name, enc := range defaultRegistry.encodings {
		gmcharset.RegisterEncoding(name, enc)
	}
	gmcharset.RegisterEncoding("windows-1252", charmap.Windows1252)
	gmcharset.RegisterEncoding("iso-8859-15", charmap.ISO8859_15)
}

// Default returns the process-wide registry
func Default() *Registry {
	return defaultRegistry
}

// NewRegistry builds a registry from the built-in alias table
func NewRegistry() *Registry {
	r := &Registry{
		tokens:    append([]string(nil), defaultTokens...),
		aliases:   make(map[string]Name, len(defaultAliases)),
		canonical: make(map[string]Name),
		encodings: make(map[string]encoding.Encoding),
	}

	for alias, name := range defaultAliases {
		r.aliases[alias] = name
		r.aliasKeys = append(r.aliasKeys, alias)
		r.encodings[alias] = defaultEncodings[name]
	}
	sort.Strings(r.aliasKeys)

	for token, name := range defaultPassthrough {
		r.canonical[token] = name
	}
	for name, enc := range defaultEncodings {
		key := strings.ToLower(string(name))
		r.canonical[key] = name
		r.encodings[key] = enc
	}

	for _, alias := range r.aliasKeys {
		r.cleaners = append(r.cleaners, regexp.MustCompile(`(?i)(charset="?)`+regexp.QuoteMeta(alias)+`\b`))
	}
	return r
}

func normalize(s string) string {
	return strings.ToLower(strings.Trim(strings.TrimSpace(s), `"`))
}

// Canonicalize resolves a declared charset name. Exact alias and canonical
// names are matched first, then the value is scanned for the known tokens.
func (r *Registry) Canonicalize(declared string) (Name, bool) {
	key := normalize(declared)
	if key == "" {
		return "", false
	}
	if name, ok := r.aliases[key]; ok {
		return name, true
	}
	if name, ok := r.canonical[key]; ok {
		return name, true
	}

	for _, token := range r.tokens {
		if !strings.Contains(key, token) {
			continue
		}
		if name, ok := r.aliases[token]; ok {
			return name, true
		}
		return r.canonical[token], true
	}
	return "", false
}

// IsKnown reports whether declared resolves to a canonical name
func (r *Registry) IsKnown(declared string) bool {
	_, ok := r.Canonicalize(declared)
	return ok
}

// NeedsRemap reports whether text mentions a charset alias that must be
// replaced before decoding.
func (r *Registry) NeedsRemap(text string) bool {
	lower := strings.ToLower(text)
	for _, alias := range r.aliasKeys {
		if strings.Contains(lower, alias) {
			return true
		}
	}
	return false
}

// Encoding resolves name to a decoder. Names outside the alias table are
// looked up in the IANA and WHATWG registries.
func (r *Registry) Encoding(name Name) (encoding.Encoding, error) {
	key := normalize(string(name))
	if enc, ok := r.encodings[key]; ok {
		return enc, nil
	}
	if canonical, ok := r.Canonicalize(key); ok {
		if enc, ok := r.encodings[strings.ToLower(string(canonical))]; ok {
			return enc, nil
		}
	}

	enc, err := ianaindex.MIME.Encoding(key)
	if enc == nil {
		enc, err = htmlindex.Get(key)
	}
	if err != nil {
		return nil, UnsupportedCharsetError{Name: string(name), Err: err}
	}
	if enc == nil {
		return nil, UnsupportedCharsetError{Name: string(name)}
	}
	return enc, nil
}

// NewReader returns a reader that converts r from name to UTF-8
func (r *Registry) NewReader(name Name, src io.Reader) (io.Reader, error) {
	if _, err := r.Encoding(name); err != nil {
		return nil, err
	}
	rd, err := gmcharset.Reader(string(r.resolve(name)), src)
	if err != nil {
		return nil, UnsupportedCharsetError{Name: string(name), Err: err}
	}
	return rd, nil
}

// DecodeBytes converts b from name to a UTF-8 string
func (r *Registry) DecodeBytes(name Name, b []byte) (string, error) {
	enc, err := r.Encoding(name)
	if err != nil {
		return "", err
	}
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", UnsupportedCharsetError{Name: string(name), Err: err}
	}
	return string(out), nil
}

// resolve returns the canonical spelling when name is in the table
func (r *Registry) resolve(name Name) Name {
	if canonical, ok := r.Canonicalize(string(name)); ok {
		return canonical
	}
	return Name(normalize(string(name)))
}

// CleanContentType rewrites charset=<alias> parameters to the canonical name
func (r *Registry) CleanContentType(contentType string) string {
	for i, alias := range r.aliasKeys {
		name := r.aliases[alias]
		contentType = r.cleaners[i].ReplaceAllString(contentType, "${1}"+string(name))
	}
	return contentType
}
