package db

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertEmail(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	email := CreateTestEmailWithAttachments("テスト", "sender@test.com", "日本語の本文", "資料.pdf", "report.txt")
	email.Charset = "X-WINDOWS-ISO2022JP"

	id, err := db.InsertEmail(email)
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	retrieved, err := db.GetEmailByID(id)
	require.NoError(t, err)
	require.NotNil(t, retrieved)

	assert.Equal(t, "テスト", retrieved.Subject)
	assert.Equal(t, "sender@test.com", retrieved.Sender)
	assert.Equal(t, "日本語の本文", retrieved.BodyTextPreview)
	assert.Equal(t, "X-WINDOWS-ISO2022JP", retrieved.Charset)
	assert.Equal(t, []string{"資料.pdf", "report.txt"}, retrieved.AttachmentNameList())
	assert.True(t, retrieved.HasAttachments)
	assert.Equal(t, 2, retrieved.AttachmentCount)
}

func TestEmailExists(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	email := CreateTestEmail("Test Subject", "sender@test.com", "Test body")
	email.FilePath = "/unique/path/test.eml"

	exists, err := db.EmailExists(email.FilePath)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = db.InsertEmail(email)
	require.NoError(t, err)

	exists, err = db.EmailExists(email.FilePath)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = db.EmailExists("/different/path.eml")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestEmailsExistBatch(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	InsertTestEmails(t, db, []*Email{
		CreateTestEmail("a", "a@test.com", "A"),
		CreateTestEmail("b", "b@test.com", "B"),
	})

	got, err := db.EmailsExistBatch([]string{"/test/a.eml", "/test/b.eml", "/test/c.eml"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{
		"/test/a.eml": true,
		"/test/b.eml": true,
		"/test/c.eml": false,
	}, got)

	got, err = db.EmailsExistBatch(nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGetEmailByID_Missing(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	retrieved, err := db.GetEmailByID(99999)
	require.NoError(t, err)
	assert.Nil(t, retrieved)
}

func TestListEmails(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	InsertTestEmails(t, db, []*Email{
		CreateTestEmailWithDate("Email 1", "sender1@test.com", "Body 1", base.Add(-3*time.Hour)),
		CreateTestEmailWithDate("Email 2", "sender2@test.com", "Body 2", base.Add(-2*time.Hour)),
		CreateTestEmailWithDate("Email 3", "sender3@test.com", "Body 3", base.Add(-1*time.Hour)),
		CreateTestEmailWithDate("Email 4", "sender4@test.com", "Body 4", base),
	})

	list, err := db.ListEmails(2, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Email 4", list[0].Subject, "most recent first")
	assert.Equal(t, "Email 3", list[1].Subject)

	list, err = db.ListEmails(2, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Email 2", list[0].Subject)
	assert.Equal(t, "Email 1", list[1].Subject)

	list, err = db.ListEmails(100, 0)
	require.NoError(t, err)
	assert.Len(t, list, 4)
}

func TestListEmails_Empty(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	list, err := db.ListEmails(10, 0)
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestCountEmails(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	count, err := db.CountEmails()
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	InsertTestEmails(t, db, []*Email{
		CreateTestEmail("Email 1", "sender1@test.com", "Body 1"),
		CreateTestEmail("Email 2", "sender2@test.com", "Body 2"),
		CreateTestEmail("Email 3", "sender3@test.com", "Body 3"),
	})

	count, err = db.CountEmails()
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestInsertEmailsBatch(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	ids, err := db.InsertEmailsBatch([]*Email{
		CreateTestEmail("one", "one@test.com", "1"),
		CreateTestEmail("two", "two@test.com", "2"),
	})
	require.NoError(t, err)
	require.Len(t, ids, 2)

	second, err := db.GetEmailByID(ids[1])
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, "two", second.Subject)

	t.Run("duplicate path rolls back", func(t *testing.T) {
		_, err := db.InsertEmailsBatch([]*Email{
			CreateTestEmail("three", "three@test.com", "3"),
			CreateTestEmail("one", "one@test.com", "1"),
		})
		require.Error(t, err)

		count, err := db.CountEmails()
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})
}

func TestAttachmentOperations(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	emailID, err := db.InsertEmail(CreateTestEmailWithAttachments("With Attachment", "sender@test.com", "Body", "見積書.pdf", "photo.jpg"))
	require.NoError(t, err)

	err = db.InsertAttachmentsBatch([]*Attachment{
		{EmailID: emailID, Filename: "見積書.pdf", ContentType: "application/pdf", Size: 1024},
		{EmailID: emailID, Filename: "photo.jpg", ContentType: "image/jpeg", Size: 2048},
	})
	require.NoError(t, err)

	attachments, err := db.GetAttachmentsByEmailID(emailID)
	require.NoError(t, err)
	require.Len(t, attachments, 2)
	assert.Equal(t, "見積書.pdf", attachments[0].Filename)
	assert.Equal(t, "application/pdf", attachments[0].ContentType)
	assert.Equal(t, int64(1024), attachments[0].Size)
	assert.Equal(t, "photo.jpg", attachments[1].Filename)

	byID, err := db.GetAttachmentByID(attachments[1].ID)
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, "photo.jpg", byID.Filename)

	missing, err := db.GetAttachmentByID(attachments[1].ID + 100)
	require.NoError(t, err)
	assert.Nil(t, missing)

	none, err := db.GetAttachmentsByEmailID(emailID + 1)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDeleteEmail(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	id, err := db.InsertEmail(CreateTestEmail("Doomed", "sender@test.com", "vanishing body"))
	require.NoError(t, err)

	require.NoError(t, db.DeleteEmail(id))

	retrieved, err := db.GetEmailByID(id)
	require.NoError(t, err)
	assert.Nil(t, retrieved)

	results, err := db.SearchEmails("vanishing", 10)
	require.NoError(t, err)
	assert.Empty(t, results, "delete trigger should clear the FTS row")

	assert.ErrorIs(t, db.DeleteEmail(id), ErrNotFound)
}

func TestRecipientList(t *testing.T) {
	e := &Email{Recipients: `"Doe, Jane" <jane@test.com>, bob@test.com`}
	assert.Equal(t, []string{`"Doe, Jane" <jane@test.com>`, "bob@test.com"}, e.RecipientList())

	assert.Empty(t, (&Email{}).RecipientList())
}

func TestNullDateHandling(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	email := CreateTestEmail("Test Subject", "sender@test.com", "Body")
	email.Date = NullTime{}

	id, err := db.InsertEmail(email)
	require.NoError(t, err)

	retrieved, err := db.GetEmailByID(id)
	require.NoError(t, err)
	require.NotNil(t, retrieved)
	assert.False(t, retrieved.Date.Valid)
	assert.True(t, retrieved.GetDate().IsZero())

	testDate := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	email2 := CreateTestEmailWithDate("Test Subject 2", "sender2@test.com", "Body 2", testDate)

	id2, err := db.InsertEmail(email2)
	require.NoError(t, err)

	retrieved2, err := db.GetEmailByID(id2)
	require.NoError(t, err)
	require.NotNil(t, retrieved2)
	assert.True(t, retrieved2.Date.Valid)
	assert.Equal(t, testDate.Unix(), retrieved2.Date.Time.Unix())
}

func TestNullTimeScan(t *testing.T) {
	var nt NullTime
	require.NoError(t, nt.Scan("2024-01-01 10:00:00"))
	assert.True(t, nt.Valid)
	assert.Equal(t, 2024, nt.Time.Year())

	require.NoError(t, nt.Scan(nil))
	assert.False(t, nt.Valid)

	out, err := json.Marshal(nt)
	require.NoError(t, err)
	assert.Equal(t, "null", string(out))

	out, err = json.Marshal(NewNullTime(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	assert.Equal(t, `"2024-01-01T10:00:00Z"`, string(out))

	assert.Error(t, nt.Scan("yesterday"))
	assert.Error(t, nt.Scan(42))
}

func TestSettings(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	value, err := db.GetSetting("test_key")
	require.NoError(t, err)
	assert.Empty(t, value)

	require.NoError(t, db.SetSetting("test_key", "test_value"))
	value, err = db.GetSetting("test_key")
	require.NoError(t, err)
	assert.Equal(t, "test_value", value)

	require.NoError(t, db.SetSetting("test_key", "updated_value"))
	value, err = db.GetSetting("test_key")
	require.NoError(t, err)
	assert.Equal(t, "updated_value", value)
}

func TestGetStats(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	sjis := CreateTestEmail("sjis", "a@test.com", "x")
	sjis.Charset = "MS932"
	InsertTestEmails(t, db, []*Email{
		CreateTestEmailWithAttachments("att", "b@test.com", "y", "a.txt"),
		CreateTestEmail("plain", "c@test.com", "z"),
		sjis,
	})
	indexed := time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)
	require.NoError(t, db.SetSetting(SettingLastIndexed, indexed.Format(time.RFC3339)))

	stats, err := db.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalEmails)
	assert.Equal(t, 1, stats.WithAttachments)
	assert.Equal(t, map[string]int{"UTF-8": 2, "MS932": 1}, stats.Charsets)
	assert.True(t, indexed.Equal(stats.LastIndexed))
}

func TestGetUniqueSenders(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	InsertTestEmails(t, db, []*Email{
		CreateTestEmail("1", "bob@test.com", "x"),
		CreateTestEmail("2", "alice@test.com", "x"),
		CreateTestEmail("3", "bob@test.com", "x"),
		CreateTestEmail("4", "carol@test.com", "x"),
	})

	senders, err := db.GetUniqueSenders(2)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob@test.com", "alice@test.com"}, senders)
}
