package indexer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felo/mailtext/internal/address"
	"github.com/felo/mailtext/internal/charset"
	"github.com/felo/mailtext/internal/db"
	"github.com/felo/mailtext/internal/parser"
)

// copyFixtures copies parser fixtures into a fresh directory tree
func copyFixtures(t *testing.T, names ...string) string {
	t.Helper()

	root := t.TempDir()
	for i, name := range names {
		data, err := os.ReadFile(filepath.Join("..", "parser", "testdata", name))
		require.NoError(t, err)

		dir := root
		if i%2 == 1 {
			dir = filepath.Join(root, "nested")
		}
		require.NoError(t, os.MkdirAll(dir, 0755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0644))
	}
	return root
}

func newIndexer(t *testing.T, root string) (*Indexer, *db.DB) {
	t.Helper()

	database := db.SetupTestDB(t)
	t.Cleanup(func() { db.CleanupTestDB(t, database) })
	return NewIndexer(database, root, parser.NewParser(charset.Default())).WithConcurrency(2), database
}

func TestIndexAll(t *testing.T) {
	root := copyFixtures(t, "simple.eml", "japanese-attachments.eml", "iso-8859-1.eml")
	idx, database := newIndexer(t, root)

	result, err := idx.IndexAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.TotalFound)
	assert.Equal(t, 3, result.NewIndexed)
	assert.Zero(t, result.Failed)

	count, err := database.CountEmails()
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	results, err := database.SearchEmails("日本語のテキスト", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)

	email := results[0].Email
	assert.Equal(t, "nested/japanese-attachments.eml", email.FilePath)
	assert.Equal(t, "sender@example.jp", email.Sender)
	assert.Equal(t, "テスト", email.SenderName)
	assert.Equal(t, []string{`"Doe, Jane" <jane@example.com>`, "bob@example.com"}, email.RecipientList())
	assert.Equal(t, []string{"テスト.txt", "テスト.pdf", parser.NoFileName}, email.AttachmentNameList())

	attachments, err := database.GetAttachmentsByEmailID(email.ID)
	require.NoError(t, err)
	assert.Len(t, attachments, 3)

	latin, err := database.SearchEmailsWithFilters("", db.SearchFilters{Charset: "windows-1252"}, 10, 0)
	require.NoError(t, err)
	require.Len(t, latin, 1)
	assert.Contains(t, latin[0].BodyTextPreview, "café")

	last, err := database.GetSetting(db.SettingLastIndexed)
	require.NoError(t, err)
	assert.NotEmpty(t, last)
}

func TestIndexAll_SkipsIndexed(t *testing.T) {
	root := copyFixtures(t, "simple.eml", "html-email.eml")
	idx, _ := newIndexer(t, root)

	_, err := idx.IndexAll(context.Background())
	require.NoError(t, err)

	result, err := idx.IndexAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Skipped)
	assert.Zero(t, result.NewIndexed)
}

func TestIndexWithProgress(t *testing.T) {
	root := copyFixtures(t, "simple.eml", "html-email.eml", "with-attachment.eml", "mime-encoded.eml")
	idx, _ := newIndexer(t, root)
	idx.WithBatchSize(3)

	var calls int
	result, err := idx.IndexWithProgress(context.Background(), func(current, total int, _ string) {
		calls++
		assert.Equal(t, calls, current)
		assert.Equal(t, 4, total)
	})
	require.NoError(t, err)
	assert.Equal(t, 4, calls)
	assert.Equal(t, 4, result.NewIndexed)
}

func TestIndexAll_UnreadableFile(t *testing.T) {
	root := copyFixtures(t, "simple.eml")
	require.NoError(t, os.Mkdir(filepath.Join(root, "folder.eml"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "broken.eml"), nil, 0000))

	idx, _ := newIndexer(t, root)
	result, err := idx.IndexAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalFound, "directories are not scanned as files")
	assert.GreaterOrEqual(t, result.NewIndexed, 1)
}

func TestIndexAll_Cancelled(t *testing.T) {
	root := copyFixtures(t, "simple.eml", "html-email.eml", "with-attachment.eml")
	idx, _ := newIndexer(t, root)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := idx.IndexAll(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.LessOrEqual(t, result.NewIndexed, 3)
}

func TestSummarize(t *testing.T) {
	date := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)
	parsed := &parser.ParsedEmail{
		MessageID: "<id@test>",
		Subject:   "件名",
		From:      address.Address{Email: "from@test.com", Name: "From"},
		To:        []address.Address{{Email: "to@test.com", Name: `Quote "Me"`}},
		Cc:        []address.Address{{Email: "cc@test.com"}},
		Date:      date,
		BodyText:  "body",
		Charset:   charset.MS932,
		Attachments: []parser.ParsedAttachment{
			{Filename: "a.pdf", ContentType: "application/pdf", Size: 3, Data: []byte("pdf")},
		},
	}

	email, attachments := summarize("x/y.eml", 42, parsed)
	assert.Equal(t, "x/y.eml", email.FilePath)
	assert.Equal(t, `"Quote \"Me\"" <to@test.com>, cc@test.com`, email.Recipients)
	assert.Equal(t, "MS932", email.Charset)
	assert.True(t, email.Date.Valid)
	assert.Equal(t, date, email.Date.Time)
	assert.Equal(t, "a.pdf", email.AttachmentNames)
	assert.True(t, email.HasAttachments)
	assert.Equal(t, int64(42), email.FileSize)
	require.Len(t, attachments, 1)
	assert.Equal(t, int64(3), attachments[0].Size)

	empty, none := summarize("z.eml", 0, &parser.ParsedEmail{})
	assert.False(t, empty.Date.Valid)
	assert.False(t, empty.HasAttachments)
	assert.Empty(t, none)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", preview("short"))

	long := strings.Repeat("あ", previewSize)
	got := preview(long)
	assert.LessOrEqual(t, len(got), previewSize)
	assert.True(t, strings.HasPrefix(long, got))
	assert.Zero(t, len(got)%len("あ"), "cut on a rune boundary")
}
