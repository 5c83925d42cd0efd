package db

import (
	"fmt"
	"strings"
)

// EmailSearchResult is an email with a highlighted snippet
type EmailSearchResult struct {
	Email
	Snippet string `json:"snippet"`
}

// SearchFilters narrows a search. Zero values do not filter.
type SearchFilters struct {
	Sender         string
	Charset        string
	HasAttachments bool
	DateFrom       string
	DateTo         string
}

// matchQuery turns user input into an FTS5 prefix query: "john doe" -> "john"* "doe"*
func matchQuery(query string) string {
	terms := strings.Fields(query)
	for i, term := range terms {
		terms[i] = `"` + strings.ReplaceAll(term, `"`, `""`) + `"*`
	}
	return strings.Join(terms, " ")
}

// SearchEmails performs a full-text search over decoded subjects, senders,
// recipients, body previews and attachment names
func (db *DB) SearchEmails(query string, limit int) ([]*EmailSearchResult, error) {
	return db.SearchEmailsWithFilters(query, SearchFilters{}, limit, 0)
}

// SearchEmailsWithFilters performs a search with additional filters and pagination
func (db *DB) SearchEmailsWithFilters(query string, f SearchFilters, limit, offset int) ([]*EmailSearchResult, error) {
	var conditions []string
	var args []any

	query = strings.TrimSpace(query)
	if query != "" {
		conditions = append(conditions, "emails_fts MATCH ?")
		args = append(args, matchQuery(query))
	}
	if f.Sender != "" {
		conditions = append(conditions, "(e.sender LIKE ? OR e.sender_name LIKE ?)")
		args = append(args, "%"+f.Sender+"%", "%"+f.Sender+"%")
	}
	if f.Charset != "" {
		conditions = append(conditions, "e.charset = ? COLLATE NOCASE")
		args = append(args, f.Charset)
	}
	if f.HasAttachments {
		conditions = append(conditions, "e.has_attachments = 1")
	}
	if f.DateFrom != "" {
		conditions = append(conditions, "e.date >= ?")
		args = append(args, f.DateFrom)
	}
	if f.DateTo != "" {
		conditions = append(conditions, "e.date <= ?")
		args = append(args, f.DateTo)
	}

	columns := "e." + strings.ReplaceAll(emailColumns, ", ", ", e.")
	sqlQuery := "SELECT " + columns
	if query != "" {
		sqlQuery += `, snippet(emails_fts, 4, '<mark>', '</mark>', '...', 32)
		FROM emails e
		JOIN emails_fts ON e.id = emails_fts.rowid`
	} else {
		sqlQuery += `, ''
		FROM emails e`
	}
	if len(conditions) > 0 {
		sqlQuery += " WHERE " + strings.Join(conditions, " AND ")
	}
	if query != "" {
		sqlQuery += " ORDER BY rank"
	} else {
		sqlQuery += " ORDER BY e.date DESC"
	}
	sqlQuery += " LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := db.Query(sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search emails: %w", err)
	}
	defer rows.Close()

	results := []*EmailSearchResult{}
	for rows.Next() {
		result := &EmailSearchResult{}
		e := &result.Email
		err := rows.Scan(
			&e.ID, &e.FilePath, &e.MessageID, &e.Subject,
			&e.Sender, &e.SenderName, &e.Recipients, &e.Date,
			&e.BodyTextPreview, &e.Charset, &e.AttachmentNames,
			&e.HasAttachments, &e.AttachmentCount, &e.FileSize,
			&e.IndexedAt, &e.UpdatedAt,
			&result.Snippet,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		if result.Snippet == "" {
			result.Snippet = truncateText(e.BodyTextPreview, 200)
		}
		results = append(results, result)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating search results: %w", err)
	}
	return results, nil
}

// truncateText truncates text to maxLen runes
func truncateText(text string, maxLen int) string {
	r := []rune(text)
	if len(r) <= maxLen {
		return text
	}
	return string(r[:maxLen]) + "..."
}
