// Package pipeline orchestrates the document processing run: extraction,
// redaction, parsing, categorization, analysis, summary, and storage. Only
// extraction and persistence failures abort a run; every other stage
// degrades with warnings.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/paperflow/internal/analyze"
	"github.com/Veraticus/paperflow/internal/categorize"
	"github.com/Veraticus/paperflow/internal/common"
	"github.com/Veraticus/paperflow/internal/extract"
	"github.com/Veraticus/paperflow/internal/model"
	"github.com/Veraticus/paperflow/internal/parse"
	"github.com/Veraticus/paperflow/internal/redact"
	"github.com/Veraticus/paperflow/internal/service"
)

// State is the terminal outcome of a run.
type State string

const (
	// StateCompleted means the run produced a result, possibly degraded.
	StateCompleted State = "completed"
	// StateFailed means extraction or persistence failed.
	StateFailed State = "failed"
)

// Request describes one document to process. Exactly one of FileBytes or
// FileURL must be set.
type Request struct {
	UserID     string
	DocType    model.DocType
	FileBytes  []byte
	FileURL    string
	FileName   string
	Redact     bool
	OnProgress ProgressFunc
}

// Result is the outcome of a completed run.
type Result struct {
	State              State
	Document           *model.StoredDocument
	Transactions       []model.StoredTransaction
	RedactedText       string
	Summary            string
	Analysis           model.DocumentAnalysis
	Warnings           []string
	IsDuplicate        bool
	ExistingDocumentID string
	// Simulated is set in dry-run mode: the run executed fully but nothing
	// was persisted.
	Simulated bool
}

// Config tunes the processor. Zero values select defaults.
type Config struct {
	// Timeout is the hard wall-clock ceiling for one run.
	Timeout time.Duration
	// MaxDownloadSize bounds URL downloads.
	MaxDownloadSize int64
	// SuspectAmountRatio is the flagged-transaction fraction above which
	// amount validation is considered unreliable and no transactions are
	// excluded. Policy, not contract.
	SuspectAmountRatio float64
	// RedactedDir is where best-effort redacted copies of uploads are
	// written when redaction is requested.
	RedactedDir string
	// DryRun executes every stage but skips all writes.
	DryRun bool
}

const (
	defaultTimeout            = 5 * time.Minute
	defaultMaxDownloadSize    = 50 * 1024 * 1024
	defaultSuspectAmountRatio = 0.5

	// maxPlausibleAmount flags parse artifacts like a concatenated
	// date-amount being read as a single number.
	maxPlausibleAmount = 1_000_000
)

// Processor runs the pipeline. Collaborators are injected; storage and the
// summarizer's LLM may be nil, degrading the relevant stages.
type Processor struct {
	extractor   *extract.Router
	categorizer *categorize.Engine
	summarizer  *analyze.Summarizer
	storage     service.Storage
	httpClient  *http.Client
	logger      *slog.Logger
	cfg         Config
}

// NewProcessor creates a processor.
func NewProcessor(extractor *extract.Router, categorizer *categorize.Engine, summarizer *analyze.Summarizer, storage service.Storage, cfg Config, logger *slog.Logger) *Processor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxDownloadSize <= 0 {
		cfg.MaxDownloadSize = defaultMaxDownloadSize
	}
	if cfg.SuspectAmountRatio <= 0 {
		cfg.SuspectAmountRatio = defaultSuspectAmountRatio
	}
	if cfg.RedactedDir == "" {
		cfg.RedactedDir = filepath.Join(os.TempDir(), "paperflow-redacted")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if categorizer == nil {
		categorizer = categorize.NewEngine(storage, nil, nil, nil, logger)
	}
	if summarizer == nil {
		summarizer = analyze.NewSummarizer(nil, logger)
	}
	return &Processor{
		extractor:   extractor,
		categorizer: categorizer,
		summarizer:  summarizer,
		storage:     storage,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		logger:      logger,
		cfg:         cfg,
	}
}

// Process runs the full pipeline for one document. The returned error is
// non-nil only when Result.State is StateFailed; common.UserMessage turns it
// into a user-facing line.
func (p *Processor) Process(ctx context.Context, req Request) (*Result, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	progress := newReporter(req.OnProgress, p.logger)
	result := &Result{State: StateCompleted, Simulated: p.cfg.DryRun}

	if strings.TrimSpace(req.UserID) == "" {
		return fail(errors.New("request is missing a user ID"))
	}

	data := req.FileBytes
	if len(data) == 0 && req.FileURL != "" {
		progress.report(milestoneDownload, "downloading document")
		downloaded, err := p.fetchURL(ctx, req.FileURL)
		if err != nil {
			return fail(err)
		}
		data = downloaded
	}

	progress.report(milestoneExtract, "extracting text")
	extracted, err := p.extractor.Extract(ctx, data, req.FileName)
	if err != nil {
		return fail(err)
	}
	result.Warnings = append(result.Warnings, extracted.Warnings...)

	contentHash := model.ContentHash(model.NormalizeText(extracted.FullText))
	if dup, dupErr := p.lookupDuplicate(ctx, req.UserID, contentHash); dupErr != nil {
		return fail(dupErr)
	} else if dup != nil {
		p.logger.Info("duplicate document detected",
			"user_id", req.UserID, "existing_id", dup.Document.ID)
		progress.report(milestoneDone, "done")
		return dup, nil
	}

	text := extracted.FullText
	var redactedURL string
	if req.Redact {
		progress.report(milestoneRedact, "redacting personal information")
		redacted := redact.Redact(text)
		result.RedactedText = redacted.RedactedText
		if extracted.Kind != model.KindOFX {
			// OFX is parsed from the original SGML; placeholders would
			// corrupt its tags.
			text = redacted.RedactedText
		}
		redactedURL = p.writeRedactedCopy(data, req.FileName)
	}

	progress.report(milestoneParse, "parsing transactions")
	txns, skipped, inferred := p.parseStage(ctx, extracted, text, req.DocType, result)
	if skipped > 0 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("%d unparseable lines were skipped", skipped))
	}

	txns, excluded := p.filterSuspectAmounts(txns)
	if excluded > 0 {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("%d transactions with implausible amounts were excluded", excluded))
	}

	progress.report(milestoneCategorize, "categorizing transactions")
	categorized := p.categorizeStage(ctx, req.UserID, txns, result)

	progress.report(milestoneAnalyze, "analyzing spending")
	result.Analysis = analyze.Compute(categorized)
	result.Summary = p.summarizer.Summarize(ctx, req.DocType, req.FileName, result.Analysis, inferredTransaction(categorized, inferred))

	progress.report(milestoneStore, "saving document")
	doc, stored := buildStoredRecords(req, categorized, result.Analysis, result.Summary, contentHash, redactedURL)
	if err := p.storeStage(ctx, doc, stored, result); err != nil {
		return fail(err)
	}
	result.Document = doc
	result.Transactions = stored

	progress.report(milestoneDone, "done")
	return result, nil
}

func fail(err error) (*Result, error) {
	return &Result{State: StateFailed}, err
}

// lookupDuplicate returns a completed duplicate result when the content hash
// already exists for this user, nil when the document is new.
func (p *Processor) lookupDuplicate(ctx context.Context, userID, contentHash string) (*Result, error) {
	if p.storage == nil {
		return nil, nil
	}

	existing, err := p.storage.FindDocumentByHash(ctx, userID, contentHash)
	if err != nil {
		return nil, common.NewUserError("could not check for an existing copy of this document", fmt.Errorf("%w: %v", common.ErrPersistence, err))
	}
	if existing == nil {
		return nil, nil
	}

	txns, err := p.storage.GetTransactionsByDocumentID(ctx, existing.ID, userID)
	if err != nil {
		return nil, common.NewUserError("could not load the existing copy of this document", fmt.Errorf("%w: %v", common.ErrPersistence, err))
	}

	return &Result{
		State:              StateCompleted,
		Document:           existing,
		Transactions:       txns,
		Summary:            existing.Summary,
		IsDuplicate:        true,
		ExistingDocumentID: existing.ID,
	}, nil
}

// parseStage extracts transactions from the text, routing OFX to its
// structured parser with the line parser as fallback. Finding nothing is a
// degraded outcome, not a failure.
func (p *Processor) parseStage(ctx context.Context, extracted *extract.Result, text string, docType model.DocType, result *Result) (txns []model.Transaction, skipped int, inferred bool) {
	if extracted.Kind == model.KindOFX {
		ofxTxns, err := parse.ParseOFX(ctx, strings.NewReader(extracted.FullText))
		if err == nil && len(ofxTxns) > 0 {
			return ofxTxns, 0, false
		}
		if err != nil {
			p.logger.Warn("OFX parse failed, falling back to line parsing", "error", err)
			result.Warnings = append(result.Warnings, "structured OFX parsing failed; line patterns were used instead")
		}
	}

	parsed, err := parse.ParseDocument(text, docType)
	if err != nil {
		if errors.Is(err, common.ErrNoTransactions) {
			result.Warnings = append(result.Warnings, "no structured transactions were detected")
			return nil, parsed.SkippedLines, false
		}
		p.logger.Warn("parse failed", "error", err)
		result.Warnings = append(result.Warnings, "transaction parsing failed")
		return nil, 0, false
	}

	valid := parsed.Transactions[:0]
	for i := range parsed.Transactions {
		if vErr := parsed.Transactions[i].Validate(); vErr != nil {
			p.logger.Warn("dropping inconsistent transaction", "error", vErr)
			skipped++
			continue
		}
		valid = append(valid, parsed.Transactions[i])
	}
	return valid, parsed.SkippedLines + skipped, parsed.Inferred
}

// filterSuspectAmounts drops implausibly large amounts, but only while the
// flagged fraction stays below the configured ratio. Past that the
// validation itself is suspect and everything is kept.
func (p *Processor) filterSuspectAmounts(txns []model.Transaction) ([]model.Transaction, int) {
	if len(txns) == 0 {
		return txns, 0
	}

	flagged := 0
	for i := range txns {
		if txns[i].AbsAmount() > maxPlausibleAmount {
			flagged++
		}
	}
	if flagged == 0 || float64(flagged)/float64(len(txns)) > p.cfg.SuspectAmountRatio {
		return txns, 0
	}

	kept := txns[:0]
	for i := range txns {
		if txns[i].AbsAmount() > maxPlausibleAmount {
			continue
		}
		kept = append(kept, txns[i])
	}
	return kept, flagged
}

// categorizeStage never fails the run: any engine error degrades every
// transaction to the Uncategorized sentinel.
func (p *Processor) categorizeStage(ctx context.Context, userID string, txns []model.Transaction, result *Result) []model.CategorizedTransaction {
	if len(txns) == 0 {
		return nil
	}

	outcome, err := p.categorizer.Categorize(ctx, userID, txns)
	if err != nil {
		p.logger.Warn("categorization failed, marking all transactions uncategorized", "error", err)
		result.Warnings = append(result.Warnings, "categorization was unavailable")
		fallback := make([]model.CategorizedTransaction, len(txns))
		for i, txn := range txns {
			fallback[i] = model.CategorizedTransaction{Transaction: txn, Category: model.Uncategorized}
		}
		return fallback
	}

	result.Warnings = append(result.Warnings, outcome.Warnings...)
	return outcome.Transactions
}

// storeStage persists the run. A duplicate surfacing here means another run
// won a race for the same content; it is folded into the duplicate outcome.
func (p *Processor) storeStage(ctx context.Context, doc *model.StoredDocument, txns []model.StoredTransaction, result *Result) error {
	if p.cfg.DryRun || p.storage == nil {
		return nil
	}

	err := p.storage.SaveDocumentWithTransactions(ctx, doc, txns)
	if err == nil {
		return nil
	}

	if errors.Is(err, common.ErrDuplicateEntry) {
		existing, findErr := p.storage.FindDocumentByHash(ctx, doc.UserID, doc.ContentHash)
		if findErr == nil && existing != nil {
			result.IsDuplicate = true
			result.ExistingDocumentID = existing.ID
			*doc = *existing
			return nil
		}
	}
	return common.NewUserError("could not save the processed document; please retry", err)
}

// writeRedactedCopy stores a redacted copy of the upload on disk, best
// effort. Formats that cannot be rewritten at the byte level are skipped;
// only the path of a successful copy is recorded on the document.
func (p *Processor) writeRedactedCopy(data []byte, fileName string) string {
	if p.cfg.DryRun {
		return ""
	}

	redactedBytes, err := redact.RedactBinary(data)
	if err != nil {
		p.logger.Debug("skipping redacted copy", "file_name", fileName, "error", err)
		return ""
	}

	if err := os.MkdirAll(p.cfg.RedactedDir, 0750); err != nil {
		p.logger.Warn("could not create redacted copy directory", "dir", p.cfg.RedactedDir, "error", err)
		return ""
	}

	base := filepath.Base(fileName)
	if base == "." || base == string(filepath.Separator) {
		base = "document.txt"
	}
	path := filepath.Join(p.cfg.RedactedDir, uuid.NewString()+"-"+base)
	if err := os.WriteFile(path, redactedBytes, 0600); err != nil {
		p.logger.Warn("could not write redacted copy", "path", path, "error", err)
		return ""
	}
	return path
}

// inferredTransaction returns the invoice-fallback transaction for the
// summary prompt, if this run produced one.
func inferredTransaction(txns []model.CategorizedTransaction, inferred bool) *model.CategorizedTransaction {
	if !inferred {
		return nil
	}
	for i := range txns {
		if txns[i].Source == model.SourceAIInferred {
			return &txns[i]
		}
	}
	return nil
}

func buildStoredRecords(req Request, txns []model.CategorizedTransaction, analysis model.DocumentAnalysis, summary, contentHash, redactedURL string) (*model.StoredDocument, []model.StoredTransaction) {
	doc := &model.StoredDocument{
		ID:               uuid.NewString(),
		UserID:           req.UserID,
		FileName:         req.FileName,
		DocType:          req.DocType,
		Status:           model.StatusCompleted,
		Summary:          summary,
		RedactedURL:      redactedURL,
		ContentHash:      contentHash,
		TransactionCount: analysis.TotalTransactions,
		TotalDebits:      analysis.TotalDebits,
		TotalCredits:     analysis.TotalCredits,
		PeriodStart:      analysis.Period.StartDate,
		PeriodEnd:        analysis.Period.EndDate,
		UploadedAt:       time.Now().UTC(),
	}

	stored := make([]model.StoredTransaction, len(txns))
	for i, txn := range txns {
		stored[i] = model.StoredTransaction{
			ID:          uuid.NewString(),
			DocumentID:  doc.ID,
			UserID:      req.UserID,
			Date:        txn.Date,
			Merchant:    txn.Merchant,
			Description: txn.Description,
			Amount:      txn.Amount,
			Direction:   txn.Direction,
			Category:    txn.Category,
			Subcategory: txn.Subcategory,
			Source:      txn.Source,
		}
	}
	return doc, stored
}
