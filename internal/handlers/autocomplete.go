package handlers

import "net/http"

// AutocompleteSenders returns sender addresses ordered by how often they appear
func (h *Handlers) AutocompleteSenders(w http.ResponseWriter, r *http.Request) {
	senders, err := h.db.GetUniqueSenders(intParam(r, "limit", 100, 1000))
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, "failed to load senders", err)
		return
	}
	h.writeJSON(w, http.StatusOK, senders)
}
