package parser

import (
	"time"

	"github.com/felo/mailtext/internal/address"
	"github.com/felo/mailtext/internal/charset"
)

// ParsedEmail is the decoded view of a message
type ParsedEmail struct {
	MessageID   string
	Subject     string
	From        address.Address
	To          []address.Address
	Cc          []address.Address
	Bcc         []address.Address
	ReplyTo     []address.Address
	Date        time.Time
	ContentType string
	BodyText    string
	Charset     charset.Name
	Attachments []ParsedAttachment
	RawHeaders  string
}

// ParsedAttachment is a message part that carries a file name
type ParsedAttachment struct {
	Filename    string
	ContentType string
	Size        int64
	Data        []byte
}

// RecipientType selects a recipient header
type RecipientType string

// Recipient headers
const (
	To  RecipientType = "To"
	Cc  RecipientType = "Cc"
	Bcc RecipientType = "Bcc"
)

// NoFileName names message/* parts that carry no file name of their own
const NoFileName = "no file name"
