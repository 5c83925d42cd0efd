package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/felo/mailtext/internal/indexer"
)

// scanProgress tracks the background scan
type scanProgress struct {
	mu          sync.RWMutex
	isScanning  bool
	current     int
	total       int
	currentFile string
	result      *indexer.IndexResult
	err         error
	lastUpdate  time.Time
}

// ScanStatus is the JSON snapshot of a scan
type ScanStatus struct {
	Scanning    bool                 `json:"scanning"`
	Current     int                  `json:"current"`
	Total       int                  `json:"total"`
	CurrentFile string               `json:"current_file"`
	Result      *indexer.IndexResult `json:"result,omitempty"`
	Error       string               `json:"error,omitempty"`
	LastUpdate  time.Time            `json:"last_update"`
}

func (sp *scanProgress) snapshot() ScanStatus {
	sp.mu.RLock()
	defer sp.mu.RUnlock()

	s := ScanStatus{
		Scanning:    sp.isScanning,
		Current:     sp.current,
		Total:       sp.total,
		CurrentFile: sp.currentFile,
		Result:      sp.result,
		LastUpdate:  sp.lastUpdate,
	}
	if sp.err != nil {
		s.Error = sp.err.Error()
	}
	return s
}

// start resets the progress and reports false when a scan is already running
func (sp *scanProgress) start() bool {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	if sp.isScanning {
		return false
	}
	sp.isScanning = true
	sp.current, sp.total, sp.currentFile = 0, 0, ""
	sp.result, sp.err = nil, nil
	sp.lastUpdate = time.Now()
	return true
}

func (sp *scanProgress) update(current, total int, file string) {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	sp.current, sp.total, sp.currentFile = current, total, file
	sp.lastUpdate = time.Now()
}

func (sp *scanProgress) finish(result *indexer.IndexResult, err error) {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	sp.isScanning = false
	sp.result, sp.err = result, err
	sp.lastUpdate = time.Now()
}

// Scan starts re-indexing the emails directory in the background
func (h *Handlers) Scan(w http.ResponseWriter, r *http.Request) {
	if !h.scan.start() {
		h.writeError(w, r, http.StatusConflict, "scan already in progress", nil)
		return
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()

		idx := indexer.NewIndexer(h.db, h.cfg.EmailsPath, h.parser).
			WithConcurrency(h.cfg.Workers).
			WithLogger(h.logger)
		result, err := idx.IndexWithProgress(h.ctx, h.scan.update)
		if err != nil {
			h.logger.Error("scan failed", "error", err)
		}
		h.scan.finish(result, err)
	}()

	h.writeJSON(w, http.StatusAccepted, h.scan.snapshot())
}

// ScanStatus reports the progress of the current or last scan
func (h *Handlers) ScanStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.scan.snapshot())
}

// Stats returns store statistics
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.db.GetStats()
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, "failed to load stats", err)
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}
