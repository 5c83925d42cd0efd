package db

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/felo/mailtext/internal/address"
)

// ErrNotFound is returned by deletes that match no row
var ErrNotFound = errors.New("email not found")

// NullTime handles both string and time.Time values from SQLite
type NullTime struct {
	Time  time.Time
	Valid bool
}

var timeFormats = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 -0700",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999 -0700",
	"2006-01-02 15:04:05.999999999",
	time.RFC1123Z,
}

func parseTime(v string) (time.Time, error) {
	var err error
	for _, format := range timeFormats {
		var t time.Time
		if t, err = time.Parse(format, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

// Scan implements sql.Scanner for NullTime
func (nt *NullTime) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		nt.Time, nt.Valid = time.Time{}, false
		return nil
	case time.Time:
		nt.Time, nt.Valid = v, true
		return nil
	case string:
		t, err := parseTime(v)
		if err != nil {
			return fmt.Errorf("failed to parse time string %q: %w", v, err)
		}
		nt.Time, nt.Valid = t, true
		return nil
	default:
		return fmt.Errorf("unsupported Scan type for NullTime: %T", value)
	}
}

// Value implements driver.Valuer for NullTime
func (nt NullTime) Value() (driver.Value, error) {
	if !nt.Valid {
		return nil, nil
	}
	return nt.Time, nil
}

// MarshalJSON writes the time as RFC 3339, or null
func (nt NullTime) MarshalJSON() ([]byte, error) {
	if !nt.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(nt.Time)
}

// Email is the decoded summary of one .eml file. Body and attachment data
// are re-parsed from the file on demand.
type Email struct {
	ID              int64    `json:"id"`
	FilePath        string   `json:"file_path"`
	MessageID       string   `json:"message_id"`
	Subject         string   `json:"subject"`
	Sender          string   `json:"sender"`
	SenderName      string   `json:"sender_name"`
	Recipients      string   `json:"recipients"`
	Date            NullTime `json:"date"`
	BodyTextPreview string   `json:"body_text_preview"`
	Charset         string   `json:"charset"`
	AttachmentNames string   `json:"attachment_names"`
	HasAttachments  bool     `json:"has_attachments"`
	AttachmentCount int      `json:"attachment_count"`
	FileSize        int64    `json:"file_size"`
	IndexedAt       NullTime `json:"indexed_at"`
	UpdatedAt       NullTime `json:"updated_at"`
}

// GetDate returns the date as time.Time, or zero time if NULL
func (e *Email) GetDate() time.Time {
	if e.Date.Valid {
		return e.Date.Time
	}
	return time.Time{}
}

// RecipientList splits the stored recipients back into entries. Commas
// inside quoted display names do not split.
func (e *Email) RecipientList() []string {
	if e.Recipients == "" {
		return []string{}
	}
	return address.Split(strings.Split(e.Recipients, ","))
}

// AttachmentNameList returns the decoded attachment file names
func (e *Email) AttachmentNameList() []string {
	if e.AttachmentNames == "" {
		return []string{}
	}
	return strings.Split(e.AttachmentNames, "\n")
}

// Attachment is the metadata of one attachment
type Attachment struct {
	ID          int64  `json:"id"`
	EmailID     int64  `json:"email_id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

const emailColumns = `id, file_path, message_id, subject, sender, sender_name, recipients, date,
	body_text_preview, charset, attachment_names, has_attachments, attachment_count, file_size,
	indexed_at, updated_at`

const insertEmail = `
	INSERT INTO emails (
		file_path, message_id, subject, sender, sender_name, recipients, date,
		body_text_preview, charset, attachment_names, has_attachments, attachment_count, file_size
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

type scanner interface {
	Scan(dest ...any) error
}

func scanEmail(row scanner) (*Email, error) {
	email := &Email{}
	err := row.Scan(
		&email.ID, &email.FilePath, &email.MessageID, &email.Subject,
		&email.Sender, &email.SenderName, &email.Recipients, &email.Date,
		&email.BodyTextPreview, &email.Charset, &email.AttachmentNames,
		&email.HasAttachments, &email.AttachmentCount, &email.FileSize,
		&email.IndexedAt, &email.UpdatedAt,
	)
	return email, err
}

func (e *Email) args() []any {
	return []any{
		e.FilePath, e.MessageID, e.Subject, e.Sender, e.SenderName, e.Recipients, e.Date,
		e.BodyTextPreview, e.Charset, e.AttachmentNames, e.HasAttachments, e.AttachmentCount, e.FileSize,
	}
}

// InsertEmail inserts a new email summary
func (db *DB) InsertEmail(email *Email) (int64, error) {
	result, err := db.Exec(insertEmail, email.args()...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert email: %w", err)
	}
	return result.LastInsertId()
}

// EmailExists checks if an email with the given file path already exists
func (db *DB) EmailExists(filePath string) (bool, error) {
	var exists bool
	err := db.QueryRow("SELECT EXISTS(SELECT 1 FROM emails WHERE file_path = ?)", filePath).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check email existence: %w", err)
	}
	return exists, nil
}

// GetEmailByID retrieves an email by its ID. It returns nil, nil when there
// is no such email.
func (db *DB) GetEmailByID(id int64) (*Email, error) {
	email, err := scanEmail(db.QueryRow(`SELECT `+emailColumns+` FROM emails WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get email: %w", err)
	}
	return email, nil
}

// ListEmails retrieves the most recent emails with pagination
func (db *DB) ListEmails(limit, offset int) ([]*Email, error) {
	rows, err := db.Query(`
		SELECT `+emailColumns+`
		FROM emails
		ORDER BY date DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list emails: %w", err)
	}
	return collectEmails(rows)
}

func collectEmails(rows *sql.Rows) ([]*Email, error) {
	defer rows.Close()

	emails := []*Email{}
	for rows.Next() {
		email, err := scanEmail(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan email: %w", err)
		}
		emails = append(emails, email)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating emails: %w", err)
	}
	return emails, nil
}

// CountEmails returns the total number of emails
func (db *DB) CountEmails() (int, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM emails").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count emails: %w", err)
	}
	return count, nil
}

// GetAttachmentsByEmailID retrieves all attachments for an email
func (db *DB) GetAttachmentsByEmailID(emailID int64) ([]*Attachment, error) {
	rows, err := db.Query(`
		SELECT id, email_id, filename, content_type, size
		FROM attachments WHERE email_id = ?
		ORDER BY id
	`, emailID)
	if err != nil {
		return nil, fmt.Errorf("failed to get attachments: %w", err)
	}
	defer rows.Close()

	attachments := []*Attachment{}
	for rows.Next() {
		att := &Attachment{}
		if err := rows.Scan(&att.ID, &att.EmailID, &att.Filename, &att.ContentType, &att.Size); err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		attachments = append(attachments, att)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attachments: %w", err)
	}
	return attachments, nil
}

// GetAttachmentByID retrieves a single attachment. It returns nil, nil when
// there is no such attachment.
func (db *DB) GetAttachmentByID(id int64) (*Attachment, error) {
	att := &Attachment{}
	err := db.QueryRow(`
		SELECT id, email_id, filename, content_type, size
		FROM attachments WHERE id = ?
	`, id).Scan(&att.ID, &att.EmailID, &att.Filename, &att.ContentType, &att.Size)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attachment: %w", err)
	}
	return att, nil
}

// InsertEmailsBatch inserts multiple emails in a single transaction.
// Returns the inserted email IDs in the same order as the input.
func (db *DB) InsertEmailsBatch(emails []*Email) ([]int64, error) {
	if len(emails) == 0 {
		return []int64{}, nil
	}

	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(insertEmail)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	ids := make([]int64, 0, len(emails))
	for _, email := range emails {
		result, err := stmt.Exec(email.args()...)
		if err != nil {
			return nil, fmt.Errorf("failed to insert email %s: %w", email.FilePath, err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("failed to get last insert id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return ids, nil
}

// InsertAttachmentsBatch inserts multiple attachments in a single transaction
func (db *DB) InsertAttachmentsBatch(attachments []*Attachment) error {
	if len(attachments) == 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO attachments (email_id, filename, content_type, size)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, att := range attachments {
		if _, err := stmt.Exec(att.EmailID, att.Filename, att.ContentType, att.Size); err != nil {
			return fmt.Errorf("failed to insert attachment %s: %w", att.Filename, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// EmailsExistBatch reports, for each file path, whether it is indexed
func (db *DB) EmailsExistBatch(filePaths []string) (map[string]bool, error) {
	result := make(map[string]bool, len(filePaths))

	// SQLite limits the number of variables in a query to 999
	const chunkSize = 500
	for i := 0; i < len(filePaths); i += chunkSize {
		end := min(i+chunkSize, len(filePaths))
		if err := db.checkExistenceChunk(filePaths[i:end], result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (db *DB) checkExistenceChunk(filePaths []string, result map[string]bool) error {
	query := "SELECT file_path FROM emails WHERE file_path IN (?" +
		strings.Repeat(",?", len(filePaths)-1) + ")"

	args := make([]any, len(filePaths))
	for i, fp := range filePaths {
		args[i] = fp
		result[fp] = false
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return fmt.Errorf("failed to check email existence: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var filePath string
		if err := rows.Scan(&filePath); err != nil {
			return fmt.Errorf("failed to scan file path: %w", err)
		}
		result[filePath] = true
	}
	return rows.Err()
}

// DeleteEmail deletes an email and its attachments. The .eml file is not
// touched.
func (db *DB) DeleteEmail(id int64) error {
	result, err := db.Exec("DELETE FROM emails WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete email: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Stats holds database statistics
type Stats struct {
	TotalEmails     int            `json:"total_emails"`
	WithAttachments int            `json:"with_attachments"`
	Charsets        map[string]int `json:"charsets"`
	LastIndexed     time.Time      `json:"last_indexed"`
}

// GetStats returns current database statistics
func (db *DB) GetStats() (*Stats, error) {
	stats := &Stats{Charsets: map[string]int{}}

	err := db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(has_attachments), 0) FROM emails
	`).Scan(&stats.TotalEmails, &stats.WithAttachments)
	if err != nil {
		return nil, fmt.Errorf("failed to count emails: %w", err)
	}

	rows, err := db.Query(`SELECT COALESCE(charset, ''), COUNT(*) FROM emails GROUP BY charset`)
	if err != nil {
		return nil, fmt.Errorf("failed to count charsets: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		var count int
		if err := rows.Scan(&name, &count); err != nil {
			return nil, fmt.Errorf("failed to scan charset count: %w", err)
		}
		stats.Charsets[name] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating charsets: %w", err)
	}

	lastIndexed, err := db.GetSetting(SettingLastIndexed)
	if err != nil {
		return nil, err
	}
	if lastIndexed != "" {
		// an unparsable value leaves LastIndexed zero
		stats.LastIndexed, _ = time.Parse(time.RFC3339, lastIndexed)
	}
	return stats, nil
}

// GetUniqueSenders returns sender addresses ordered by frequency, most
// frequent first
func (db *DB) GetUniqueSenders(limit int) ([]string, error) {
	rows, err := db.Query(`
		SELECT sender
		FROM emails
		WHERE sender != ''
		GROUP BY sender
		ORDER BY COUNT(*) DESC, sender ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get unique senders: %w", err)
	}
	defer rows.Close()

	senders := []string{}
	for rows.Next() {
		var sender string
		if err := rows.Scan(&sender); err != nil {
			return nil, fmt.Errorf("failed to scan sender: %w", err)
		}
		senders = append(senders, sender)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating senders: %w", err)
	}
	return senders, nil
}
