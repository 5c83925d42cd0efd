package handlers

import (
	"net/http"
	"time"

	"github.com/felo/mailtext/internal/address"
	"github.com/felo/mailtext/internal/parser"
)

type attachmentView struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

type messageView struct {
	MessageID   string            `json:"message_id"`
	Subject     string            `json:"subject"`
	From        address.Address   `json:"from"`
	To          []address.Address `json:"to"`
	Cc          []address.Address `json:"cc"`
	Bcc         []address.Address `json:"bcc"`
	ReplyTo     []address.Address `json:"reply_to"`
	Date        *time.Time        `json:"date,omitempty"`
	ContentType string            `json:"content_type"`
	Charset     string            `json:"charset"`
	Body        string            `json:"body"`
	Attachments []attachmentView  `json:"attachments"`
	RawHeaders  string            `json:"raw_headers,omitempty"`
}

func newMessageView(p *parser.ParsedEmail) messageView {
	v := messageView{
		MessageID:   p.MessageID,
		Subject:     p.Subject,
		From:        p.From,
		To:          p.To,
		Cc:          p.Cc,
		Bcc:         p.Bcc,
		ReplyTo:     p.ReplyTo,
		ContentType: p.ContentType,
		Charset:     p.Charset.String(),
		Body:        p.BodyText,
		Attachments: make([]attachmentView, 0, len(p.Attachments)),
		RawHeaders:  p.RawHeaders,
	}
	if !p.Date.IsZero() {
		v.Date = &p.Date
	}
	for _, a := range p.Attachments {
		v.Attachments = append(v.Attachments, attachmentView{
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Size:        a.Size,
		})
	}
	return v
}

// Message decodes a raw .eml posted as the request body
func (h *Handlers) Message(w http.ResponseWriter, r *http.Request) {
	parsed, err := h.parser.Parse(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			// anything else is a message the parser could not read
			status = http.StatusBadRequest
		}
		h.writeError(w, r, status, "failed to parse message", err)
		return
	}
	h.writeJSON(w, http.StatusOK, newMessageView(parsed))
}
