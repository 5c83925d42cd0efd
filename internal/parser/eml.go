package parser

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/felo/mailtext/internal/charset"
)

var defaultParser = NewParser(charset.Default())

// ParseEMLFile parses an .eml file and returns a ParsedEmail
func ParseEMLFile(filePath string) (*ParsedEmail, error) {
	return defaultParser.ParseFile(filePath)
}

// ParseEML parses an email from a reader
func ParseEML(r io.Reader) (*ParsedEmail, error) {
	return defaultParser.Parse(r)
}

// ParseFile parses an .eml file
func (p *Parser) ParseFile(filePath string) (*ParsedEmail, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	return p.Parse(f)
}

// Parse reads a whole message from r and decodes everything the Message
// interface exposes.
func (p *Parser) Parse(r io.Reader) (*ParsedEmail, error) {
	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, r); err != nil {
		return nil, fmt.Errorf("failed to read email: %w", err)
	}

	w, err := p.Wrap(buf.Bytes())
	if err != nil {
		return nil, err
	}
	return p.Summarize(w)
}

// Summarize collects the decoded fields of w
func (p *Parser) Summarize(w *Wrapper) (*ParsedEmail, error) {
	parsed := &ParsedEmail{
		MessageID:   w.MessageID(),
		Subject:     w.Subject(),
		To:          w.Recipients(To),
		Cc:          w.Recipients(Cc),
		Bcc:         w.Recipients(Bcc),
		ReplyTo:     w.ReplyTo(),
		ContentType: w.ContentType(),
		RawHeaders:  w.RawHeaders(),
	}

	if from := w.From(); len(from) > 0 {
		parsed.From = from[0]
	}

	if date, err := w.Date(); err == nil {
		parsed.Date = date
	} else {
		p.logger.Debug("missing or invalid date", "message_id", parsed.MessageID, "error", err)
	}

	body, err := w.Content()
	if err != nil {
		return nil, err
	}
	parsed.BodyText = body
	parsed.Charset = w.Charset()

	attachments, err := w.Attachments()
	if err != nil {
		return nil, fmt.Errorf("failed to read attachments: %w", err)
	}
	parsed.Attachments = attachments

	return parsed, nil
}
