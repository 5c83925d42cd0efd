package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/felo/mailtext/internal/address"
	"github.com/felo/mailtext/internal/charset"
	"github.com/felo/mailtext/internal/log"
)

func (h *Handlers) readText(w http.ResponseWriter, r *http.Request) (string, bool) {
	b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		h.writeError(w, r, statusFor(err), "failed to read request body", err)
		return "", false
	}
	return string(b), true
}

// DecodeHeader decodes the encoded words in a raw header value
func (h *Handlers) DecodeHeader(w http.ResponseWriter, r *http.Request) {
	raw, ok := h.readText(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"decoded": h.headers.DecodeHeaderValue(raw)})
}

// DecodeFileName extracts the file name from a raw part header block
func (h *Handlers) DecodeFileName(w http.ResponseWriter, r *http.Request) {
	block, ok := h.readText(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"filename": h.headers.DecodeFileNameParameter(block)})
}

// DecodeContent decodes a body with the charset and transfer encoding given
// in the query
func (h *Handlers) DecodeContent(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	name := charset.Name(q.Get("charset"))
	if name == "" {
		name = charset.UTF8
	}

	text, err := h.content.Decode(http.MaxBytesReader(w, r.Body, maxBodySize), name, q.Get("encoding"))
	if err != nil {
		h.writeError(w, r, statusFor(err), "failed to decode content", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{
		"content": text,
		"charset": name.String(),
	})
}

// Guess picks the first of the comma separated candidates that decodes the
// request body. Candidates are canonicalized first. With detect=true an
// undecided guess falls back to statistical detection.
func (h *Handlers) Guess(w http.ResponseWriter, r *http.Request) {
	var candidates charset.CandidateSet
	for _, c := range strings.Split(r.URL.Query().Get("candidates"), ",") {
		name, ok := h.reg.Canonicalize(c)
		if !ok {
			name = charset.Name(strings.TrimSpace(c))
		}
		candidates = candidates.Add(name)
	}

	sample, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		h.writeError(w, r, statusFor(err), "failed to read request body", err)
		return
	}

	name, err := h.guesser.Guess(candidates, bytes.NewReader(sample))
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, "failed to guess charset", err)
		return
	}

	detected := false
	if name == "" && r.URL.Query().Get("detect") == "true" {
		if name, err = h.guesser.Detect(sample); err != nil {
			h.writeError(w, r, http.StatusInternalServerError, "failed to detect charset", err)
			return
		}
		detected = name != ""
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"charset":  name.String(),
		"detected": detected,
	})
}

type repairRequest struct {
	Host []address.Address `json:"host"`
	Raw  []string          `json:"raw"`
}

// Repair reconciles a host parser's address list with the raw header values
func (h *Handlers) Repair(w http.ResponseWriter, r *http.Request) {
	var req repairRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid request body", err)
		return
	}
	h.logger.Debug("repair", "host", req.Host, "raw", log.FmtValue(req.Raw))

	addrs, err := h.repairer.Repair(req.Host, req.Raw)
	if err != nil {
		h.writeError(w, r, statusFor(err), "failed to repair addresses", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string][]address.Address{"addresses": addrs})
}
