package handlers

import (
	"net/http"

	"github.com/felo/mailtext/internal/db"
)

// Search runs a full-text search over the decoded summaries
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := db.SearchFilters{
		Sender:         q.Get("sender"),
		Charset:        q.Get("charset"),
		HasAttachments: q.Get("attachments") == "true",
		DateFrom:       q.Get("from"),
		DateTo:         q.Get("to"),
	}

	results, err := h.db.SearchEmailsWithFilters(q.Get("q"), filters,
		intParam(r, "limit", 50, 500), intParam(r, "offset", 0, 1<<31-1))
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, "search failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"results": results})
}
