package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/felo/mailtext/internal/address"
	"github.com/felo/mailtext/internal/charset"
	"github.com/felo/mailtext/internal/config"
	"github.com/felo/mailtext/internal/db"
	"github.com/felo/mailtext/internal/decoder"
	"github.com/felo/mailtext/internal/log"
	"github.com/felo/mailtext/internal/parser"
	"github.com/felo/mailtext/internal/scanner"
)

// maxBodySize bounds request bodies, raw messages included
const maxBodySize = 32 << 20

// Handlers holds all HTTP handlers and their dependencies
type Handlers struct {
	db     *db.DB
	cfg    *config.Config
	logger *slog.Logger

	reg      *charset.Registry
	headers  *decoder.HeaderDecoder
	content  *decoder.ContentDecoder
	guesser  *charset.Guesser
	repairer *address.Repairer
	parser   *parser.Parser
	files    *scanner.Scanner

	scan   *scanProgress
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Handlers instance
func New(database *db.DB, cfg *config.Config, logger *slog.Logger) *Handlers {
	logger = log.Or(logger)
	reg := charset.Default()
	headers := decoder.NewHeaderDecoder(reg)
	ctx, cancel := context.WithCancel(context.Background())

	return &Handlers{
		db:       database,
		cfg:      cfg,
		logger:   logger,
		reg:      reg,
		headers:  headers,
		content:  decoder.NewContentDecoder(reg),
		guesser:  charset.NewGuesser(reg).WithSampleSize(cfg.SampleSize),
		repairer: address.NewRepairer(headers, reg),
		parser:   parser.NewParser(reg).WithLogger(logger).WithSampleSize(cfg.SampleSize),
		files:    scanner.NewScanner(cfg.EmailsPath),
		scan:     &scanProgress{},
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Close stops a running scan and waits for it to finish
func (h *Handlers) Close() {
	h.cancel()
	h.wg.Wait()
}

// Routes builds the router
func (h *Handlers) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Route("/api", func(r chi.Router) {
		r.Route("/decode", func(r chi.Router) {
			r.Post("/header", h.DecodeHeader)
			r.Post("/filename", h.DecodeFileName)
			r.Post("/content", h.DecodeContent)
		})
		r.Post("/guess", h.Guess)
		r.Post("/repair", h.Repair)
		r.Post("/message", h.Message)

		r.Get("/emails", h.ListEmails)
		r.Get("/emails/{id}", h.GetEmail)
		r.Get("/attachments/{id}", h.DownloadAttachment)
		r.Get("/search", h.Search)
		r.Get("/senders", h.AutocompleteSenders)

		r.Get("/stats", h.Stats)
		r.Post("/scan", h.Scan)
		r.Get("/scan", h.ScanStatus)
	})
	return r
}

func (h *Handlers) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("failed to encode response", "error", err)
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, status int, msg string, err error) {
	level := slog.LevelDebug
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(r.Context(), level, msg, "path", r.URL.Path, "status", status, "error", err)

	if err != nil && status < http.StatusInternalServerError {
		msg += ": " + err.Error()
	}
	h.writeJSON(w, status, errorResponse{Error: msg})
}

// statusFor maps decoding failures onto HTTP statuses
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case charset.IsUnsupportedCharset(err), decoder.IsMalformedEncoding(err), address.IsFormatError(err):
		return http.StatusUnprocessableEntity
	case decoder.IsSourceRead(err):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// intParam parses a positive query parameter, falling back to def
func intParam(r *http.Request, key string, def, limit int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v < 0 {
		return def
	}
	return min(v, limit)
}

func idParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
