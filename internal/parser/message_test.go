package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felo/mailtext/internal/address"
	"github.com/felo/mailtext/internal/charset"
	"github.com/felo/mailtext/internal/log"
)

func wrap(t *testing.T, eml string) *Wrapper {
	t.Helper()
	w, err := NewParser(charset.Default()).WithLogger(log.Noop).Wrap([]byte(eml))
	require.NoError(t, err)
	return w
}

func TestWrapper_HeaderAccessors(t *testing.T) {
	w := wrap(t, "Received: one\r\n"+
		"Received: two\r\n"+
		"Message-Id: <id@example.com>\r\n"+
		"Content-Type: text/plain; charset=ISO-2022-JP\r\n"+
		"\r\n"+
		"body\r\n")

	assert.ElementsMatch(t, []string{"one", "two"}, w.Header("Received"))
	assert.Empty(t, w.Header("X-Missing"))
	assert.Equal(t, "text/plain; charset=X-WINDOWS-ISO2022JP", w.ContentType())
	assert.Equal(t, "<id@example.com>", w.MessageID())
	assert.Equal(t, "", w.Subject())
	assert.Equal(t, "", w.FileName())

	_, err := w.Date()
	assert.Error(t, err)
}

func TestWrapper_AbsentRecipients(t *testing.T) {
	w := wrap(t, "From: a@example.com\r\n\r\nbody")

	for _, kind := range []RecipientType{To, Cc, Bcc} {
		got := w.Recipients(kind)
		assert.NotNil(t, got, string(kind))
		assert.Empty(t, got, string(kind))
	}
}

// TestWrapper_UnrepairableAddresses tests that the host result is kept when repair fails
func TestWrapper_UnrepairableAddresses(t *testing.T) {
	w := wrap(t, "To: good@example.com, =?UTF-8?Q?bad?=\r\n\r\nbody")

	got := w.Recipients(To)
	assert.NotNil(t, got)
	for _, a := range got {
		assert.NotEqual(t, "bad", a.Email)
	}
}

func TestWrapper_ReplyToSkipsInvalidEntries(t *testing.T) {
	w := wrap(t, "From: from@example.com\r\nReply-To: not an address, reply@example.com\r\n\r\nbody")

	assert.Equal(t, []address.Address{{Email: "reply@example.com"}}, w.ReplyTo())
}

// TestWrapper_ContentRetriesAs8Bit tests that a body that is not valid quoted-printable is read as 8-bit
func TestWrapper_ContentRetriesAs8Bit(t *testing.T) {
	w := wrap(t, "Content-Type: text/plain; charset=utf-8\r\n"+
		"Content-Transfer-Encoding: quoted-printable\r\n"+
		"\r\n"+
		"bell\x07 in body")

	got, err := w.Content()
	require.NoError(t, err)
	assert.Equal(t, "bell\x07 in body", got)
	assert.Equal(t, charset.Name("utf-8"), w.Charset())
}

func TestWrapper_ContentUnsupportedCharset(t *testing.T) {
	w := wrap(t, "Content-Type: text/plain; charset=x-no-such-charset\r\n\r\nbody")

	_, err := w.Content()
	require.Error(t, err)
	assert.True(t, charset.IsUnsupportedCharset(err))
}
