package handlers

import (
	"net/http"

	"github.com/felo/mailtext/internal/db"
)

// ListEmails returns the most recent email summaries
func (h *Handlers) ListEmails(w http.ResponseWriter, r *http.Request) {
	limit := intParam(r, "limit", 50, 500)
	offset := intParam(r, "offset", 0, 1<<31-1)

	emails, err := h.db.ListEmails(limit, offset)
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, "failed to load emails", err)
		return
	}
	total, err := h.db.CountEmails()
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, "failed to count emails", err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"emails": emails,
		"total":  total,
	})
}

type emailResponse struct {
	*db.Email
	Attachments []*db.Attachment `json:"attachments"`
	Message     messageView      `json:"message"`
}

// GetEmail returns one email summary together with the message re-parsed
// from its .eml file
func (h *Handlers) GetEmail(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid email ID", err)
		return
	}

	email, err := h.db.GetEmailByID(id)
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, "failed to load email", err)
		return
	}
	if email == nil {
		h.writeError(w, r, http.StatusNotFound, "email not found", nil)
		return
	}

	attachments, err := h.db.GetAttachmentsByEmailID(id)
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, "failed to load attachments", err)
		return
	}

	parsed, err := h.parser.ParseFile(h.files.Resolve(email.FilePath))
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, "failed to parse email file", err)
		return
	}

	h.writeJSON(w, http.StatusOK, emailResponse{
		Email:       email,
		Attachments: attachments,
		Message:     newMessageView(parsed),
	})
}
