package decoder

import (
	"bufio"
	"encoding/base64"
	"io"
	"mime/quotedprintable"
	"strings"

	"github.com/felo/mailtext/internal/charset"
)

// Transfer encodings understood by ContentDecoder
const (
	Base64          = "base64"
	QuotedPrintable = "quoted-printable"
)

// ContentDecoder turns a transfer-encoded body into text
type ContentDecoder struct {
	reg *charset.Registry
}

// NewContentDecoder creates a content decoder backed by reg
func NewContentDecoder(reg *charset.Registry) *ContentDecoder {
	return &ContentDecoder{reg: reg}
}

// Decode reads rc, undoes transferEncoding and converts the result from
// name to UTF-8. An empty transferEncoding is treated as quoted-printable;
// anything other than base64 or quoted-printable is read as 8-bit text.
// Lines are rejoined with CRLF and the final line break is dropped.
// rc is always closed.
func (d *ContentDecoder) Decode(rc io.ReadCloser, name charset.Name, transferEncoding string) (string, error) {
	defer rc.Close()

	src := &sourceReader{r: rc}
	te := normalizeTransferEncoding(transferEncoding)

	text, err := d.reg.NewReader(name, TransferReader(src, te))
	if err != nil {
		return "", err
	}

	out, err := joinLines(text)
	if err != nil {
		if src.err != nil {
			return "", SourceReadError{Err: src.err}
		}
		return "", MalformedEncodingError{Encoding: te, Err: err}
	}
	return out, nil
}

// TransferReader undoes transferEncoding on r. An empty encoding is read
// as quoted-printable and unknown encodings pass through unchanged.
func TransferReader(r io.Reader, transferEncoding string) io.Reader {
	switch normalizeTransferEncoding(transferEncoding) {
	case Base64:
		return base64.NewDecoder(base64.StdEncoding, &whitespaceReplacer{r: r})
	case QuotedPrintable:
		return quotedprintable.NewReader(r)
	default:
		return r
	}
}

func normalizeTransferEncoding(te string) string {
	te = strings.ToLower(strings.TrimSpace(te))
	if te == "" {
		return QuotedPrintable
	}
	return te
}

// joinLines splits on CRLF, CR or LF and rejoins with CRLF
func joinLines(r io.Reader) (string, error) {
	br := bufio.NewReader(r)

	var sb strings.Builder
	first := true
	for {
		chunk, err := br.ReadString('\n')
		if len(chunk) > 0 {
			chunk = strings.TrimSuffix(strings.TrimSuffix(chunk, "\n"), "\r")
			for _, line := range strings.Split(chunk, "\r") {
				if !first {
					sb.WriteString("\r\n")
				}
				sb.WriteString(line)
				first = false
			}
		}
		if err == io.EOF {
			return sb.String(), nil
		}
		if err != nil {
			return "", err
		}
	}
}

// sourceReader remembers the first error of the underlying stream so read
// failures can be told apart from decoding failures.
type sourceReader struct {
	r   io.Reader
	err error
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF && s.err == nil {
		s.err = err
	}
	return n, err
}

// whitespaceReplacer turns spaces and tabs into newlines, which the base64
// decoder skips.
type whitespaceReplacer struct {
	r io.Reader
}

func (w *whitespaceReplacer) Read(p []byte) (int, error) {
	n, err := w.r.Read(p)
	for i, b := range p[:n] {
		if b == ' ' || b == '\t' {
			p[i] = '\n'
		}
	}
	return n, err
}
