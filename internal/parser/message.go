package parser

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"

	"github.com/felo/mailtext/internal/address"
	"github.com/felo/mailtext/internal/charset"
	"github.com/felo/mailtext/internal/decoder"
	"github.com/felo/mailtext/internal/log"
)

// Message is the read side of a mail message with repaired text
type Message interface {
	Subject() string
	From() []address.Address
	Recipients(kind RecipientType) []address.Address
	ReplyTo() []address.Address
	Content() (string, error)
	FileName() string
	Attachments() ([]ParsedAttachment, error)
	Header(name string) []string
	ContentType() string
	Date() (time.Time, error)
	MessageID() string
}

// Parser builds Wrappers that share one set of decoders
type Parser struct {
	reg      *charset.Registry
	headers  *decoder.HeaderDecoder
	content  *decoder.ContentDecoder
	guesser  *charset.Guesser
	repairer *address.Repairer
	logger   *slog.Logger
}

// NewParser creates a parser backed by reg
func NewParser(reg *charset.Registry) *Parser {
	headers := decoder.NewHeaderDecoder(reg)
	return &Parser{
		reg:      reg,
		headers:  headers,
		content:  decoder.NewContentDecoder(reg),
		guesser:  charset.NewGuesser(reg),
		repairer: address.NewRepairer(headers, reg),
		logger:   log.Noop,
	}
}

// WithLogger sets the logger used to report fallbacks
func (p *Parser) WithLogger(l *slog.Logger) *Parser {
	p.logger = log.Or(l)
	return p
}

// WithSampleSize sets how many body bytes are sampled when guessing a charset
func (p *Parser) WithSampleSize(n int) *Parser {
	p.guesser.WithSampleSize(n)
	return p
}

// Wrap parses the header of raw and returns a Wrapper over it
func (p *Parser) Wrap(raw []byte) (*Wrapper, error) {
	br := bufio.NewReader(bytes.NewReader(raw))
	h, err := textproto.ReadHeader(br)
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	body, err := io.ReadAll(br)
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	return &Wrapper{
		p:      p,
		header: mail.Header{Header: message.Header{Header: h}},
		body:   body,
	}, nil
}

// Wrapper implements Message on top of a go-message header, routing header
// text, addresses and bodies through the repairing decoders.
type Wrapper struct {
	p      *Parser
	header mail.Header
	body   []byte

	charset charset.Name
}

var _ Message = (*Wrapper)(nil)

// Subject decodes the Subject header. Values using a charset alias are
// decoded by the header decoder; otherwise the go-message decode is used and
// redone with a guessed charset when it contains unprintable text.
func (w *Wrapper) Subject() string {
	raws := w.rawValues("Subject")
	if len(raws) == 0 {
		return ""
	}
	raw := raws[0]

	if w.p.reg.NeedsRemap(raw) {
		return stripCRLF(w.p.headers.DecodeHeaderValue(raw))
	}

	subject, err := w.header.Subject()
	if err != nil {
		w.p.logger.Debug("host subject decode failed", "error", err)
		subject = w.p.headers.DecodeHeaderValue(raw)
	}
	if charset.IsPrintable(subject) && utf8.ValidString(subject) {
		return subject
	}

	unfolded := stripCRLF(raw)
	if name := w.guess([]byte(unfolded)); name != "" {
		if text, err := w.p.reg.DecodeBytes(name, []byte(unfolded)); err == nil {
			return text
		}
	}
	return subject
}

// From returns the repaired From list
func (w *Wrapper) From() []address.Address {
	return w.addresses("From")
}

// Recipients returns the repaired list for kind
func (w *Wrapper) Recipients(kind RecipientType) []address.Address {
	return w.addresses(string(kind))
}

// ReplyTo rebuilds Reply-To from its raw text, falling back to From
func (w *Wrapper) ReplyTo() []address.Address {
	var out []address.Address
	for _, part := range address.Split(w.rawValues("Reply-To")) {
		a, err := w.p.repairer.FromRaw(part)
		if err != nil {
			w.p.logger.Debug("skipping reply-to entry", "error", err)
			continue
		}
		out = append(out, a)
	}
	if len(out) == 0 {
		return w.From()
	}
	return out
}

func (w *Wrapper) addresses(key string) []address.Address {
	raw := w.rawValues(key)
	if len(raw) == 0 {
		return []address.Address{}
	}

	var host []address.Address
	list, err := w.header.AddressList(key)
	if err != nil {
		w.p.logger.Debug("host address parse failed", "header", key, "error", err)
	}
	for _, a := range list {
		host = append(host, address.Address{Email: a.Address, Name: a.Name})
	}

	repaired, err := w.p.repairer.Repair(host, raw)
	if err != nil {
		w.p.logger.Debug("address repair failed", "header", key, "error", err)
		if host == nil {
			return []address.Address{}
		}
		return host
	}
	return repaired
}

// Header returns every value of the named field as found in the message
func (w *Wrapper) Header(name string) []string {
	var out []string
	fields := w.header.FieldsByKey(name)
	for fields.Next() {
		out = append(out, fields.Value())
	}
	return out
}

// ContentType returns the Content-Type with charset aliases replaced
func (w *Wrapper) ContentType() string {
	return w.p.reg.CleanContentType(w.header.Get("Content-Type"))
}

// Date returns the parsed Date header
func (w *Wrapper) Date() (time.Time, error) {
	return w.header.Date()
}

// MessageID returns the Message-Id header as written
func (w *Wrapper) MessageID() string {
	return strings.TrimSpace(w.header.Get("Message-Id"))
}

// Charset reports the charset Content used for the body
func (w *Wrapper) Charset() charset.Name {
	return w.charset
}

// RawHeaders returns the header block as it appears in the message
func (w *Wrapper) RawHeaders() string {
	return headerBlock(&w.header.Header.Header)
}

// rawValues returns the values of key with folding line breaks kept
func (w *Wrapper) rawValues(key string) []string {
	var out []string
	fields := w.header.FieldsByKey(key)
	for fields.Next() {
		b, err := fields.Raw()
		if err != nil {
			out = append(out, fields.Value())
			continue
		}
		out = append(out, rawValue(b))
	}
	return out
}

// guess picks a charset for sample from the charsets named in the header
func (w *Wrapper) guess(sample []byte) charset.Name {
	candidates := charset.Harvest(w.p.reg, w.headerValues())
	name, err := w.p.guesser.Guess(candidates, bytes.NewReader(sample))
	if err != nil {
		w.p.logger.Debug("charset guess failed", "error", err)
		return ""
	}
	return name
}

func (w *Wrapper) headerValues() []string {
	var values []string
	fields := w.header.Fields()
	for fields.Next() {
		values = append(values, fields.Value())
	}
	return values
}

func rawValue(line []byte) string {
	s := string(line)
	if i := strings.IndexByte(s, ':'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}

func headerBlock(h *textproto.Header) string {
	var sb strings.Builder
	fields := h.Fields()
	for fields.Next() {
		if b, err := fields.Raw(); err == nil {
			sb.Write(b)
			if !bytes.HasSuffix(b, []byte("\n")) {
				sb.WriteString("\r\n")
			}
			continue
		}
		sb.WriteString(fields.Key() + ": " + fields.Value() + "\r\n")
	}
	return sb.String()
}

func stripCRLF(s string) string {
	return strings.NewReplacer("\r\n", "", "\r", "", "\n", "").Replace(s)
}
