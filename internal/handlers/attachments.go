package handlers

import (
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"
)

// sanitizeFilename strips path components and control characters from a
// decoded attachment name
func sanitizeFilename(filename string) string {
	filename = filepath.Base(strings.ReplaceAll(filename, `\`, "/"))

	cleaned := strings.Map(func(r rune) rune {
		if r < 32 || r == 127 || r == '"' || r == '\'' {
			return -1
		}
		return r
	}, filename)

	for len(cleaned) > 255 {
		_, size := utf8.DecodeLastRuneInString(cleaned)
		cleaned = cleaned[:len(cleaned)-size]
	}

	if cleaned == "" || cleaned == "." || cleaned == "/" {
		cleaned = "download.bin"
	}
	return cleaned
}

// DownloadAttachment streams one attachment, re-extracted from its .eml file
func (h *Handlers) DownloadAttachment(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid attachment ID", err)
		return
	}

	att, err := h.db.GetAttachmentByID(id)
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, "failed to load attachment", err)
		return
	}
	if att == nil {
		h.writeError(w, r, http.StatusNotFound, "attachment not found", nil)
		return
	}

	data, err := h.attachmentData(att.EmailID, att.ID)
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, "failed to load attachment data", err)
		return
	}

	// mime.FormatMediaType switches to RFC 2231 encoding for non-ASCII names
	w.Header().Set("Content-Disposition",
		mime.FormatMediaType("attachment", map[string]string{
			"filename": sanitizeFilename(att.Filename),
		}))
	w.Header().Set("Content-Type", att.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Write(data)
}

// attachmentData re-parses the email file and returns the data of the
// attachment stored at the same position
func (h *Handlers) attachmentData(emailID, attachmentID int64) ([]byte, error) {
	email, err := h.db.GetEmailByID(emailID)
	if err != nil {
		return nil, err
	}
	if email == nil {
		return nil, fmt.Errorf("email %d not found", emailID)
	}

	stored, err := h.db.GetAttachmentsByEmailID(emailID)
	if err != nil {
		return nil, err
	}
	index := -1
	for i, a := range stored {
		if a.ID == attachmentID {
			index = i
		}
	}

	parsed, err := h.parser.ParseFile(h.files.Resolve(email.FilePath))
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(parsed.Attachments) {
		return nil, fmt.Errorf("attachment %d not found in %s", attachmentID, email.FilePath)
	}
	return parsed.Attachments[index].Data, nil
}
