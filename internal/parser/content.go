package parser

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/textproto"

	"github.com/felo/mailtext/internal/charset"
	"github.com/felo/mailtext/internal/decoder"
)

// Content decodes the message body. For multipart messages the first
// text/plain part is used. Non-text single part bodies have no content.
func (w *Wrapper) Content() (string, error) {
	h := &w.header.Header.Header
	if isMultipart(h) {
		return w.firstText(h, w.body)
	}
	if !strings.HasPrefix(mediaType(h), "text/") {
		return "", nil
	}
	return w.decodeBody(h, w.body)
}

// FileName decodes the file name of a single part application message
func (w *Wrapper) FileName() string {
	h := &w.header.Header.Header
	if !strings.HasPrefix(mediaType(h), "application/") {
		return ""
	}
	return w.fileName(h)
}

// Attachments returns every part that carries a file name. message/* parts
// without one are named NoFileName.
func (w *Wrapper) Attachments() ([]ParsedAttachment, error) {
	h := &w.header.Header.Header
	if !isMultipart(h) {
		if name := w.FileName(); name != "" {
			return []ParsedAttachment{w.attachment(h, w.body, name)}, nil
		}
		return nil, nil
	}

	var out []ParsedAttachment
	err := w.walk(h, w.body, func(ph *textproto.Header, body []byte) (bool, error) {
		name := w.fileName(ph)
		if name == "" && strings.HasPrefix(mediaType(ph), "message/") {
			name = NoFileName
		}
		if name != "" {
			out = append(out, w.attachment(ph, body, name))
		}
		return false, nil
	})
	return out, err
}

func (w *Wrapper) attachment(h *textproto.Header, body []byte, name string) ParsedAttachment {
	te := h.Get("Content-Transfer-Encoding")
	if te == "" {
		te = "7bit"
	}
	data, err := io.ReadAll(decoder.TransferReader(bytes.NewReader(body), te))
	if err != nil {
		w.p.logger.Debug("keeping attachment undecoded", "filename", name, "error", err)
		data = body
	}
	return ParsedAttachment{
		Filename:    name,
		ContentType: mediaType(h),
		Size:        int64(len(data)),
		Data:        data,
	}
}

// decodeBody decodes one leaf. A missing charset is guessed from the
// charsets named in the message header, then detected statistically, then
// assumed to be UTF-8. A failed transfer decoding is retried as 8-bit.
func (w *Wrapper) decodeBody(h *textproto.Header, body []byte) (string, error) {
	te := h.Get("Content-Transfer-Encoding")

	var name charset.Name
	_, params := contentType(h)
	declared := strings.TrimSpace(params["charset"])
	switch {
	case declared == "":
		name = w.bodyCharset(body, te)
	case w.p.reg.NeedsRemap(declared):
		name, _ = w.p.reg.Canonicalize(declared)
	default:
		name = charset.Name(declared)
	}

	text, err := w.p.content.Decode(io.NopCloser(bytes.NewReader(body)), name, te)
	if err != nil && decoder.IsMalformedEncoding(err) {
		w.p.logger.Debug("retrying body as 8bit", "charset", name, "encoding", te, "error", err)
		text, err = w.p.content.Decode(io.NopCloser(bytes.NewReader(body)), name, "8bit")
	}
	if err != nil {
		return "", fmt.Errorf("failed to decode content: %w", err)
	}

	w.charset = name
	return text, nil
}

func (w *Wrapper) bodyCharset(body []byte, te string) charset.Name {
	sample, err := io.ReadAll(io.LimitReader(decoder.TransferReader(bytes.NewReader(body), te), charset.DefaultSampleSize))
	if err != nil {
		sample = body
	}

	if name := w.guess(sample); name != "" {
		return name
	}

	name, err := w.p.guesser.Detect(sample)
	if err != nil {
		w.p.logger.Debug("charset detection failed", "error", err)
	}
	if name == "" || !w.p.reg.IsKnown(string(name)) && !w.supported(name) {
		return charset.UTF8
	}
	w.p.logger.Debug("charset detected", "charset", name)
	return name
}

func (w *Wrapper) supported(name charset.Name) bool {
	_, err := w.p.reg.Encoding(name)
	return err == nil
}

// fileName decodes the file name of a part, redecoding it with a guessed
// charset when the parameter carried raw 8-bit text.
func (w *Wrapper) fileName(h *textproto.Header) string {
	name := w.p.headers.DecodeFileNameParameter(headerBlock(h))
	if name == "" || charset.IsPrintable(name) {
		return name
	}

	if cs := w.guess([]byte(name)); cs != "" {
		if text, err := w.p.reg.DecodeBytes(cs, []byte(name)); err == nil {
			return text
		}
	}
	return name
}

// firstText returns the decoded first text/plain leaf under a multipart
func (w *Wrapper) firstText(h *textproto.Header, body []byte) (string, error) {
	var text string
	err := w.walk(h, body, func(ph *textproto.Header, pbody []byte) (bool, error) {
		if mediaType(ph) != "text/plain" || isAttachment(ph) {
			return false, nil
		}
		var err error
		text, err = w.decodeBody(ph, pbody)
		return true, err
	})
	return text, err
}

// walk calls fn for every leaf of a multipart body, depth first, until fn
// reports it is done or fails.
func (w *Wrapper) walk(h *textproto.Header, body []byte, fn func(*textproto.Header, []byte) (bool, error)) error {
	_, err := w.walkParts(h, body, fn)
	return err
}

func (w *Wrapper) walkParts(h *textproto.Header, body []byte, fn func(*textproto.Header, []byte) (bool, error)) (bool, error) {
	_, params := contentType(h)
	boundary := params["boundary"]
	if boundary == "" {
		return false, fmt.Errorf("multipart body without boundary")
	}

	mr := textproto.NewMultipartReader(bytes.NewReader(body), boundary)
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("failed to read part: %w", err)
		}

		pbody, err := io.ReadAll(part)
		if err != nil {
			return false, fmt.Errorf("failed to read part body: %w", err)
		}

		ph := part.Header
		var done bool
		if isMultipart(&ph) {
			done, err = w.walkParts(&ph, pbody, fn)
		} else {
			done, err = fn(&ph, pbody)
		}
		if err != nil || done {
			return done, err
		}
	}
}

// contentType parses Content-Type, defaulting to text/plain
func contentType(h *textproto.Header) (string, map[string]string) {
	mh := message.Header{Header: *h}
	mt, params, _ := mh.ContentType()
	if mt == "" {
		mt = "text/plain"
	}
	return strings.ToLower(mt), params
}

func mediaType(h *textproto.Header) string {
	mt, _ := contentType(h)
	return mt
}

func isMultipart(h *textproto.Header) bool {
	return strings.HasPrefix(mediaType(h), "multipart/")
}

func isAttachment(h *textproto.Header) bool {
	mh := message.Header{Header: *h}
	disp, _, err := mh.ContentDisposition()
	return err == nil && strings.EqualFold(disp, "attachment")
}
