package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/felo/mailtext/internal/address"
	"github.com/felo/mailtext/internal/db"
	"github.com/felo/mailtext/internal/log"
	"github.com/felo/mailtext/internal/parser"
	"github.com/felo/mailtext/internal/scanner"
)

const (
	previewSize      = 10 * 1024
	defaultBatchSize = 100
)

// Indexer parses .eml files with a worker pool and stores their decoded
// summaries
type Indexer struct {
	db          *db.DB
	scanner     *scanner.Scanner
	parser      *parser.Parser
	logger      *slog.Logger
	concurrency int
	batchSize   int
}

// NewIndexer creates a new indexer for the files under emailsPath
func NewIndexer(database *db.DB, emailsPath string, p *parser.Parser) *Indexer {
	return &Indexer{
		db:          database,
		scanner:     scanner.NewScanner(emailsPath),
		parser:      p,
		logger:      log.Noop,
		concurrency: runtime.NumCPU() * 2, // parsing is mostly waiting on disk
		batchSize:   defaultBatchSize,
	}
}

// WithConcurrency sets the number of concurrent workers
func (idx *Indexer) WithConcurrency(workers int) *Indexer {
	idx.concurrency = max(workers, 1)
	return idx
}

// WithBatchSize sets how many summaries are written per transaction
func (idx *Indexer) WithBatchSize(n int) *Indexer {
	idx.batchSize = max(n, 1)
	return idx
}

// WithLogger sets the logger
func (idx *Indexer) WithLogger(l *slog.Logger) *Indexer {
	idx.logger = log.Or(l)
	return idx
}

// IndexResult contains statistics about an indexing operation
type IndexResult struct {
	TotalFound  int      `json:"total_found"`
	NewIndexed  int      `json:"new_indexed"`
	Skipped     int      `json:"skipped"`
	Failed      int      `json:"failed"`
	FailedFiles []string `json:"failed_files"`
}

func (r *IndexResult) fail(paths ...string) {
	r.Failed += len(paths)
	r.FailedFiles = append(r.FailedFiles, paths...)
}

// IndexAll scans and indexes all new .eml files
func (idx *Indexer) IndexAll(ctx context.Context) (*IndexResult, error) {
	return idx.IndexWithProgress(ctx, nil)
}

type parsedFile struct {
	path        string
	email       *db.Email
	attachments []*db.Attachment
	err         error
}

// IndexWithProgress indexes all new files and reports each finished file to
// progress. Files already in the store are skipped. Cancelling ctx stops
// handing out files; summaries parsed so far are still stored.
func (idx *Indexer) IndexWithProgress(ctx context.Context, progress func(current, total int, filePath string)) (*IndexResult, error) {
	files, err := idx.scanner.Scan()
	if err != nil {
		return nil, fmt.Errorf("failed to scan for files: %w", err)
	}

	existing, err := idx.db.EmailsExistBatch(files)
	if err != nil {
		return nil, err
	}

	result := &IndexResult{TotalFound: len(files), FailedFiles: []string{}}
	pending := make([]string, 0, len(files))
	for _, f := range files {
		if existing[f] {
			result.Skipped++
			continue
		}
		pending = append(pending, f)
	}

	idx.logger.Info("indexing",
		"root", idx.scanner.GetRootPath(),
		"found", result.TotalFound,
		"new", len(pending),
		"workers", idx.concurrency,
	)

	fileChan := make(chan string)
	resultChan := make(chan parsedFile)

	var wg sync.WaitGroup
	for range idx.concurrency {
		wg.Add(1)
		go idx.worker(&wg, fileChan, resultChan)
	}

	go func() {
		defer close(fileChan)
		for _, f := range pending {
			select {
			case fileChan <- f:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	batch := make([]parsedFile, 0, idx.batchSize)
	processed := 0
	for res := range resultChan {
		processed++
		if progress != nil {
			progress(processed, len(pending), res.path)
		}

		if res.err != nil {
			idx.logger.Warn("failed to parse email", "path", res.path, "error", res.err)
			result.fail(res.path)
			continue
		}

		batch = append(batch, res)
		if len(batch) == idx.batchSize {
			idx.flush(batch, result)
			batch = batch[:0]
		}
	}
	idx.flush(batch, result)

	if err := idx.db.SetSetting(db.SettingLastIndexed, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return result, err
	}
	if err := idx.db.SetSetting(db.SettingEmailsPath, idx.scanner.GetRootPath()); err != nil {
		return result, err
	}

	idx.logger.Info("indexing complete",
		"new", result.NewIndexed,
		"skipped", result.Skipped,
		"failed", result.Failed,
	)

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("indexing interrupted: %w", err)
	}
	return result, nil
}

func (idx *Indexer) worker(wg *sync.WaitGroup, fileChan <-chan string, resultChan chan<- parsedFile) {
	defer wg.Done()

	for path := range fileChan {
		resultChan <- idx.processFile(path)
	}
}

func (idx *Indexer) processFile(relPath string) parsedFile {
	absPath := idx.scanner.Resolve(relPath)

	info, err := os.Stat(absPath)
	if err != nil {
		return parsedFile{path: relPath, err: fmt.Errorf("failed to stat file: %w", err)}
	}

	parsed, err := idx.parser.ParseFile(absPath)
	if err != nil {
		return parsedFile{path: relPath, err: err}
	}

	email, attachments := summarize(relPath, info.Size(), parsed)
	return parsedFile{path: relPath, email: email, attachments: attachments}
}

// flush stores one batch of summaries. A failed batch marks all its files
// as failed.
func (idx *Indexer) flush(batch []parsedFile, result *IndexResult) {
	if len(batch) == 0 {
		return
	}

	paths := make([]string, len(batch))
	emails := make([]*db.Email, len(batch))
	for i, b := range batch {
		paths[i] = b.path
		emails[i] = b.email
	}

	ids, err := idx.db.InsertEmailsBatch(emails)
	if err != nil {
		idx.logger.Error("failed to store batch", "size", len(batch), "error", err)
		result.fail(paths...)
		return
	}
	result.NewIndexed += len(ids)

	var attachments []*db.Attachment
	for i, b := range batch {
		for _, att := range b.attachments {
			att.EmailID = ids[i]
			attachments = append(attachments, att)
		}
	}
	if err := idx.db.InsertAttachmentsBatch(attachments); err != nil {
		// the summaries already carry the attachment names
		idx.logger.Error("failed to store attachments", "size", len(attachments), "error", err)
	}
}

// summarize maps a decoded message onto its stored summary
func summarize(relPath string, size int64, parsed *parser.ParsedEmail) (*db.Email, []*db.Attachment) {
	recipients := make([]string, 0, len(parsed.To)+len(parsed.Cc))
	for _, list := range [][]address.Address{parsed.To, parsed.Cc} {
		for _, a := range list {
			recipients = append(recipients, a.String())
		}
	}

	names := make([]string, 0, len(parsed.Attachments))
	attachments := make([]*db.Attachment, 0, len(parsed.Attachments))
	for _, att := range parsed.Attachments {
		names = append(names, att.Filename)
		attachments = append(attachments, &db.Attachment{
			Filename:    att.Filename,
			ContentType: att.ContentType,
			Size:        att.Size,
		})
	}

	email := &db.Email{
		FilePath:        relPath,
		MessageID:       parsed.MessageID,
		Subject:         parsed.Subject,
		Sender:          parsed.From.Email,
		SenderName:      parsed.From.Name,
		Recipients:      strings.Join(recipients, ", "),
		Date:            db.NullTime{Time: parsed.Date, Valid: !parsed.Date.IsZero()},
		BodyTextPreview: preview(parsed.BodyText),
		Charset:         parsed.Charset.String(),
		AttachmentNames: strings.Join(names, "\n"),
		HasAttachments:  len(parsed.Attachments) > 0,
		AttachmentCount: len(parsed.Attachments),
		FileSize:        size,
	}
	return email, attachments
}

// preview cuts s to at most previewSize bytes on a rune boundary
func preview(s string) string {
	if len(s) <= previewSize {
		return s
	}
	cut := previewSize
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
