package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/paperflow/internal/analyze"
	"github.com/Veraticus/paperflow/internal/categorize"
	"github.com/Veraticus/paperflow/internal/common"
	"github.com/Veraticus/paperflow/internal/extract"
	"github.com/Veraticus/paperflow/internal/model"
	"github.com/Veraticus/paperflow/internal/service"
	"github.com/Veraticus/paperflow/internal/testutil"
)

const statementText = `2024-01-15 STARBUCKS COFFEE -5.75
2024-01-16 SHELL OIL 57433 -40.00
2024-01-31 PAYROLL DEPOSIT 2500.00
this line is not a transaction
`

type fakeLLM struct {
	mu    sync.Mutex
	calls int
	reply string
	err   error
}

func (f *fakeLLM) Complete(_ context.Context, _ service.ChatRequest) (service.ChatResponse, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return service.ChatResponse{}, f.err
	}
	return service.ChatResponse{Content: f.reply}, nil
}

type progressRecorder struct {
	mu       sync.Mutex
	percents []int
}

func (r *progressRecorder) record(percent int, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.percents = append(r.percents, percent)
}

func (r *progressRecorder) seen(percent int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.percents {
		if p == percent {
			return true
		}
	}
	return false
}

func setupProcessor(t *testing.T, llm service.LLMClient, cfg Config) (*Processor, service.Storage) {
	t.Helper()

	store := testutil.SetupTestDB(t).Storage
	router := extract.NewRouter(nil, extract.Config{}, nil)
	engine := categorize.NewEngine(store, llm, nil, nil, nil)
	summarizer := analyze.NewSummarizer(llm, nil)
	return NewProcessor(router, engine, summarizer, store, cfg, nil), store
}

func TestProcessStatementEndToEnd(t *testing.T) {
	processor, store := setupProcessor(t, nil, Config{})
	recorder := &progressRecorder{}

	result, err := processor.Process(context.Background(), Request{
		UserID:     "u1",
		DocType:    model.DocTypeBankStatement,
		FileBytes:  []byte(statementText),
		FileName:   "jan.txt",
		OnProgress: recorder.record,
	})
	require.NoError(t, err)
	require.Equal(t, StateCompleted, result.State)
	assert.False(t, result.IsDuplicate)

	require.NotNil(t, result.Document)
	assert.Equal(t, 3, result.Document.TransactionCount)
	assert.InDelta(t, 45.75, result.Document.TotalDebits, 0.001)
	assert.InDelta(t, 2500.00, result.Document.TotalCredits, 0.001)
	assert.NotEmpty(t, result.Summary)
	require.Len(t, result.Transactions, 3)
	for _, txn := range result.Transactions {
		assert.Equal(t, model.Uncategorized, txn.Category)
	}

	// Malformed line was skipped, not fatal.
	assert.Contains(t, result.Warnings, "1 unparseable lines were skipped")

	// The run landed in storage.
	docs, err := store.ListDocuments(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, docs, 1)

	require.Eventually(t, func() bool { return recorder.seen(milestoneDone) },
		time.Second, 10*time.Millisecond)
	assert.True(t, recorder.seen(milestoneExtract))
	assert.True(t, recorder.seen(milestoneStore))
}

func TestDuplicateDocumentIsIdempotent(t *testing.T) {
	processor, store := setupProcessor(t, nil, Config{})
	ctx := context.Background()

	req := Request{
		UserID:    "u1",
		DocType:   model.DocTypeBankStatement,
		FileBytes: []byte(statementText),
		FileName:  "jan.txt",
	}

	first, err := processor.Process(ctx, req)
	require.NoError(t, err)
	require.Equal(t, StateCompleted, first.State)

	// Same content, different filename: dedup is by extracted text.
	req.FileName = "jan-copy.txt"
	second, err := processor.Process(ctx, req)
	require.NoError(t, err)
	require.Equal(t, StateCompleted, second.State)
	assert.True(t, second.IsDuplicate)
	assert.Equal(t, first.Document.ID, second.ExistingDocumentID)
	require.NotNil(t, second.Document)
	assert.Equal(t, first.Document.ID, second.Document.ID)
	assert.Len(t, second.Transactions, 3)

	docs, err := store.ListDocuments(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestLLMFailureDegradesToUncategorized(t *testing.T) {
	llm := &fakeLLM{err: context.DeadlineExceeded}
	processor, _ := setupProcessor(t, llm, Config{})

	result, err := processor.Process(context.Background(), Request{
		UserID:    "u1",
		DocType:   model.DocTypeBankStatement,
		FileBytes: []byte(statementText),
		FileName:  "jan.txt",
	})
	require.NoError(t, err)
	require.Equal(t, StateCompleted, result.State)
	require.Len(t, result.Transactions, 3)
	for _, txn := range result.Transactions {
		assert.Equal(t, model.Uncategorized, txn.Category)
	}
	assert.NotEmpty(t, result.Warnings)
	assert.NotEmpty(t, result.Summary)
}

func TestExtractionFailureFailsTheRun(t *testing.T) {
	processor, store := setupProcessor(t, nil, Config{})

	// Binary garbage with no OCR client configured.
	data := []byte{0x00, 0x01, 0x02, 0x00, 0xFF, 0x00, 0x03, 0x00}
	result, err := processor.Process(context.Background(), Request{
		UserID:    "u1",
		DocType:   model.DocTypeBankStatement,
		FileBytes: data,
		FileName:  "scan.bin",
	})
	require.Error(t, err)
	assert.Equal(t, StateFailed, result.State)
	assert.NotEmpty(t, common.UserMessage(err))

	docs, listErr := store.ListDocuments(context.Background(), "u1")
	require.NoError(t, listErr)
	assert.Empty(t, docs)
}

func TestDownloadFromURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(statementText))
	}))
	defer server.Close()

	processor, _ := setupProcessor(t, nil, Config{})
	result, err := processor.Process(context.Background(), Request{
		UserID:   "u1",
		DocType:  model.DocTypeBankStatement,
		FileURL:  server.URL + "/jan.txt",
		FileName: "jan.txt",
	})
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, result.State)
	assert.Len(t, result.Transactions, 3)
}

func TestDownloadFailureFailsTheRun(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	processor, _ := setupProcessor(t, nil, Config{})
	result, err := processor.Process(context.Background(), Request{
		UserID:  "u1",
		DocType: model.DocTypeBankStatement,
		FileURL: server.URL + "/missing.txt",
	})
	require.Error(t, err)
	assert.Equal(t, StateFailed, result.State)
}

func TestDryRunSkipsWrites(t *testing.T) {
	processor, store := setupProcessor(t, nil, Config{DryRun: true})

	result, err := processor.Process(context.Background(), Request{
		UserID:    "u1",
		DocType:   model.DocTypeBankStatement,
		FileBytes: []byte(statementText),
		FileName:  "jan.txt",
	})
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, result.State)
	assert.True(t, result.Simulated)
	assert.Len(t, result.Transactions, 3)

	docs, err := store.ListDocuments(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestRedactionProducesRedactedText(t *testing.T) {
	processor, _ := setupProcessor(t, nil, Config{RedactedDir: t.TempDir()})

	text := "Account 12345678901\n" + statementText
	result, err := processor.Process(context.Background(), Request{
		UserID:    "u1",
		DocType:   model.DocTypeBankStatement,
		FileBytes: []byte(text),
		FileName:  "jan.txt",
		Redact:    true,
	})
	require.NoError(t, err)
	assert.Contains(t, result.RedactedText, "{{ACCOUNT}}")
	assert.NotContains(t, result.RedactedText, "12345678901")
	// Transactions still parse from the redacted text.
	assert.Len(t, result.Transactions, 3)
}

func TestRedactedCopyStoredForTextUploads(t *testing.T) {
	dir := t.TempDir()
	processor, _ := setupProcessor(t, nil, Config{RedactedDir: dir})

	text := "Account 12345678901\n" + statementText
	result, err := processor.Process(context.Background(), Request{
		UserID:    "u1",
		DocType:   model.DocTypeBankStatement,
		FileBytes: []byte(text),
		FileName:  "jan.txt",
		Redact:    true,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Document)
	require.NotEmpty(t, result.Document.RedactedURL)
	assert.Equal(t, dir, filepath.Dir(result.Document.RedactedURL))

	copyBytes, err := os.ReadFile(result.Document.RedactedURL)
	require.NoError(t, err)
	assert.Contains(t, string(copyBytes), "{{ACCOUNT}}")
	assert.NotContains(t, string(copyBytes), "12345678901")
}

func TestUnredactableUploadCopyIsNonFatal(t *testing.T) {
	processor, _ := setupProcessor(t, nil, Config{RedactedDir: t.TempDir()})

	// A NUL byte keeps the byte-level rewrite from running; the decoded
	// text still flows through the rest of the pipeline.
	data := append([]byte(statementText), 0x00)
	result, err := processor.Process(context.Background(), Request{
		UserID:    "u1",
		DocType:   model.DocTypeBankStatement,
		FileBytes: data,
		FileName:  "jan.txt",
		Redact:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, result.State)
	require.NotNil(t, result.Document)
	assert.Empty(t, result.Document.RedactedURL)
	assert.Len(t, result.Transactions, 3)
}

func TestDryRunSkipsRedactedCopy(t *testing.T) {
	dir := t.TempDir()
	processor, _ := setupProcessor(t, nil, Config{DryRun: true, RedactedDir: dir})

	result, err := processor.Process(context.Background(), Request{
		UserID:    "u1",
		DocType:   model.DocTypeBankStatement,
		FileBytes: []byte(statementText),
		FileName:  "jan.txt",
		Redact:    true,
	})
	require.NoError(t, err)
	assert.Empty(t, result.Document.RedactedURL)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestZeroTransactionsStillSummarized(t *testing.T) {
	processor, _ := setupProcessor(t, nil, Config{})

	text := "Meeting notes from the quarterly review, nothing financial here at all."
	result, err := processor.Process(context.Background(), Request{
		UserID:    "u1",
		DocType:   model.DocTypeBankStatement,
		FileBytes: []byte(text),
		FileName:  "notes.txt",
	})
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, result.State)
	assert.Empty(t, result.Transactions)
	assert.NotEmpty(t, result.Summary)
	assert.Contains(t, result.Warnings, "no structured transactions were detected")
}

func TestPanickingProgressSinkDoesNotFailTheRun(t *testing.T) {
	processor, _ := setupProcessor(t, nil, Config{})

	result, err := processor.Process(context.Background(), Request{
		UserID:     "u1",
		DocType:    model.DocTypeBankStatement,
		FileBytes:  []byte(statementText),
		FileName:   "jan.txt",
		OnProgress: func(int, string) { panic("sink exploded") },
	})
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, result.State)
}

func TestMissingUserIDRejected(t *testing.T) {
	processor, _ := setupProcessor(t, nil, Config{})

	result, err := processor.Process(context.Background(), Request{
		DocType:   model.DocTypeBankStatement,
		FileBytes: []byte(statementText),
	})
	require.Error(t, err)
	assert.Equal(t, StateFailed, result.State)
}

func TestFilterSuspectAmounts(t *testing.T) {
	processor, _ := setupProcessor(t, nil, Config{})

	txn := func(amount float64) model.Transaction {
		direction := model.DirectionCredit
		if amount < 0 {
			direction = model.DirectionDebit
		}
		return model.Transaction{Amount: amount, Direction: direction}
	}

	// One outlier among plausible amounts is excluded.
	kept, excluded := processor.filterSuspectAmounts([]model.Transaction{
		txn(-5.75), txn(-40.00), txn(-20240115000000), txn(2500.00),
	})
	assert.Equal(t, 1, excluded)
	assert.Len(t, kept, 3)

	// When most amounts are flagged, validation itself is suspect and
	// nothing is excluded.
	kept, excluded = processor.filterSuspectAmounts([]model.Transaction{
		txn(-2000000), txn(-3000000), txn(50.00),
	})
	assert.Equal(t, 0, excluded)
	assert.Len(t, kept, 3)
}

func TestReporterIsMonotone(t *testing.T) {
	recorder := &progressRecorder{}
	r := newReporter(recorder.record, nil)

	r.report(25, "extract")
	r.report(10, "stale")
	r.report(55, "parse")
	r.report(55, "duplicate")
	r.report(100, "done")

	require.Eventually(t, func() bool { return recorder.seen(100) },
		time.Second, 5*time.Millisecond)
	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	assert.ElementsMatch(t, []int{25, 55, 100}, recorder.percents)
}

func TestSecondWorkerSeesDuplicate(t *testing.T) {
	// Two processors sharing one database simulate concurrent workers.
	store := testutil.SetupTestDB(t).Storage

	router := extract.NewRouter(nil, extract.Config{}, nil)
	a := NewProcessor(router, nil, nil, store, Config{}, nil)
	b := NewProcessor(router, nil, nil, store, Config{}, nil)

	first, err := a.Process(context.Background(), Request{
		UserID: "u1", DocType: model.DocTypeBankStatement,
		FileBytes: []byte(statementText), FileName: "jan.txt",
	})
	require.NoError(t, err)

	second, err := b.Process(context.Background(), Request{
		UserID: "u1", DocType: model.DocTypeBankStatement,
		FileBytes: []byte(statementText), FileName: "jan.txt",
	})
	require.NoError(t, err)
	assert.True(t, second.IsDuplicate)
	assert.Equal(t, first.Document.ID, second.ExistingDocumentID)
}

func TestNilProgressCallbackIsSafe(t *testing.T) {
	r := newReporter(nil, nil)
	assert.NotPanics(t, func() { r.report(50, "halfway") })
}
