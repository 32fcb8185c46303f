package categorize

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/paperflow/internal/model"
	"github.com/Veraticus/paperflow/internal/service"
)

// fakeStorage implements service.Storage in memory for engine tests.
type fakeStorage struct {
	mu         sync.Mutex
	rules      map[string][]model.CategorizationRule
	increments map[int64]int
	nextRuleID int64
	rulesErr   error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		rules:      make(map[string][]model.CategorizationRule),
		increments: make(map[int64]int),
	}
}

func (f *fakeStorage) GetRulesForUser(_ context.Context, userID string) ([]model.CategorizationRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rulesErr != nil {
		return nil, f.rulesErr
	}
	out := make([]model.CategorizationRule, len(f.rules[userID]))
	copy(out, f.rules[userID])
	return out, nil
}

func (f *fakeStorage) SaveRule(_ context.Context, rule *model.CategorizationRule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextRuleID++
	rule.ID = f.nextRuleID
	f.rules[rule.UserID] = append(f.rules[rule.UserID], *rule)
	return nil
}

func (f *fakeStorage) IncrementRuleMatchCount(_ context.Context, ruleID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.increments[ruleID]++
	return nil
}

func (f *fakeStorage) FindDocumentByHash(context.Context, string, string) (*model.StoredDocument, error) {
	return nil, nil
}

func (f *fakeStorage) SaveDocumentWithTransactions(context.Context, *model.StoredDocument, []model.StoredTransaction) error {
	return nil
}

func (f *fakeStorage) GetDocumentByID(context.Context, string, string) (*model.StoredDocument, error) {
	return nil, nil
}

func (f *fakeStorage) GetTransactionsByDocumentID(context.Context, string, string) ([]model.StoredTransaction, error) {
	return nil, nil
}

func (f *fakeStorage) ListDocuments(context.Context, string) ([]model.StoredDocument, error) {
	return nil, nil
}

func (f *fakeStorage) Migrate(context.Context) error { return nil }
func (f *fakeStorage) Close() error                  { return nil }

// fakeLLM returns a canned response and records the prompts it saw.
type fakeLLM struct {
	mu       sync.Mutex
	response string
	err      error
	calls    int
	prompts  []string
}

func (f *fakeLLM) Complete(_ context.Context, req service.ChatRequest) (service.ChatResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	for _, m := range req.Messages {
		f.prompts = append(f.prompts, m.Content)
	}
	if f.err != nil {
		return service.ChatResponse{}, f.err
	}
	return service.ChatResponse{Content: f.response}, nil
}

func debit(merchant, description string, amount float64) model.Transaction {
	return model.Transaction{
		Date:        time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		Merchant:    merchant,
		Description: description,
		Amount:      -amount,
		Direction:   model.DirectionDebit,
		Source:      model.SourceParsed,
	}
}

func TestCategorizeRulesTier(t *testing.T) {
	storage := newFakeStorage()
	storage.rules["u1"] = []model.CategorizationRule{
		{ID: 1, UserID: "u1", Keyword: "starbucks", Category: "Restaurants", MatchCount: 5},
	}
	llmClient := &fakeLLM{}
	engine := NewEngine(storage, llmClient, nil, nil, nil)

	outcome, err := engine.Categorize(context.Background(), "u1",
		[]model.Transaction{debit("STARBUCKS", "STARBUCKS #1234", 5.75)})

	require.NoError(t, err)
	require.Len(t, outcome.Transactions, 1)
	assert.Equal(t, "Restaurants", outcome.Transactions[0].Category)
	assert.Equal(t, 1, outcome.RulesUsed)
	assert.False(t, outcome.LLMUsed)
	assert.Equal(t, 0, llmClient.calls)
	assert.Equal(t, 1, storage.increments[1])
	assert.InDelta(t, 1.0, outcome.Confidence, 0.001)
}

func TestCategorizeRuleTieBreaks(t *testing.T) {
	storage := newFakeStorage()
	storage.rules["u1"] = []model.CategorizationRule{
		{ID: 1, UserID: "u1", Keyword: "shell", Category: "Transport", MatchCount: 2},
		{ID: 2, UserID: "u1", Keyword: "shell oil", Category: "Utilities", MatchCount: 2},
		{ID: 3, UserID: "u1", Keyword: "oil", Category: "Shopping", MatchCount: 9},
	}
	engine := NewEngine(storage, nil, nil, nil, nil)

	outcome, err := engine.Categorize(context.Background(), "u1",
		[]model.Transaction{debit("SHELL OIL", "SHELL OIL 5521", 42.00)})

	require.NoError(t, err)
	// Highest match count wins outright.
	assert.Equal(t, "Shopping", outcome.Transactions[0].Category)
	assert.Equal(t, 1, storage.increments[3])
}

func TestCategorizeRuleTieLongestKeyword(t *testing.T) {
	storage := newFakeStorage()
	storage.rules["u1"] = []model.CategorizationRule{
		{ID: 1, UserID: "u1", Keyword: "shell", Category: "Transport", MatchCount: 2},
		{ID: 2, UserID: "u1", Keyword: "shell oil", Category: "Utilities", MatchCount: 2},
	}
	engine := NewEngine(storage, nil, nil, nil, nil)

	outcome, err := engine.Categorize(context.Background(), "u1",
		[]model.Transaction{debit("SHELL OIL", "SHELL OIL 5521", 42.00)})

	require.NoError(t, err)
	assert.Equal(t, "Utilities", outcome.Transactions[0].Category)
}

func TestCategorizeLearnedTier(t *testing.T) {
	learning := NewLearningStore()
	learning.Observe("u1", "SHELL OIL", "Transport")
	llmClient := &fakeLLM{}
	engine := NewEngine(newFakeStorage(), llmClient, learning, nil, nil)

	outcome, err := engine.Categorize(context.Background(), "u1",
		[]model.Transaction{debit("SHELL OIL", "SHELL OIL 5521", 42.00)})

	require.NoError(t, err)
	assert.Equal(t, "Transport", outcome.Transactions[0].Category)
	assert.False(t, outcome.LLMUsed)
	assert.Equal(t, 0, llmClient.calls)
}

func TestCategorizeLearnedTierIsolatedPerUser(t *testing.T) {
	learning := NewLearningStore()
	learning.Observe("u1", "SHELL OIL", "Transport")
	llmClient := &fakeLLM{response: `{"SHELL OIL": "Utilities"}`}
	engine := NewEngine(newFakeStorage(), llmClient, learning, nil, nil)

	// A different user must not see u1's learned vendor.
	outcome, err := engine.Categorize(context.Background(), "u2",
		[]model.Transaction{debit("SHELL OIL", "SHELL OIL 5521", 42.00)})

	require.NoError(t, err)
	assert.True(t, outcome.LLMUsed)
	assert.Equal(t, "Utilities", outcome.Transactions[0].Category)
}

func TestCategorizeBatchesSingleLLMCall(t *testing.T) {
	llmClient := &fakeLLM{response: `{"STARBUCKS": "Restaurants", "SHELL OIL": "Transport"}`}
	storage := newFakeStorage()
	engine := NewEngine(storage, llmClient, nil, nil, nil)

	txns := []model.Transaction{
		debit("STARBUCKS", "STARBUCKS #1", 5.75),
		debit("STARBUCKS", "STARBUCKS #2", 4.25),
		debit("SHELL OIL", "SHELL OIL 5521", 42.00),
	}
	outcome, err := engine.Categorize(context.Background(), "u1", txns)

	require.NoError(t, err)
	assert.Equal(t, 1, llmClient.calls)
	assert.True(t, outcome.LLMUsed)
	assert.Equal(t, "Restaurants", outcome.Transactions[0].Category)
	assert.Equal(t, "Restaurants", outcome.Transactions[1].Category)
	assert.Equal(t, "Transport", outcome.Transactions[2].Category)
	assert.InDelta(t, llmConfidence, outcome.Confidence, 0.001)

	// Accepted mappings are persisted as durable rules.
	rules, err := storage.GetRulesForUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, rules, 2)
	for _, r := range rules {
		assert.Equal(t, model.RuleSourceLearned, r.Source)
	}
}

func TestCategorizeMixedTiersSendsOnlyUnknownVendorsToLLM(t *testing.T) {
	storage := newFakeStorage()
	storage.rules["u1"] = []model.CategorizationRule{
		{ID: 1, UserID: "u1", Keyword: "starbucks", Category: "Restaurants", MatchCount: 3},
	}
	llmClient := &fakeLLM{response: `{"SHELL OIL": "Transport"}`}
	engine := NewEngine(storage, llmClient, nil, nil, nil)

	txns := []model.Transaction{
		debit("STARBUCKS", "STARBUCKS #1", 5.75),
		debit("STARBUCKS", "STARBUCKS #2", 4.25),
		debit("SHELL OIL", "SHELL OIL 5521", 42.00),
	}
	outcome, err := engine.Categorize(context.Background(), "u1", txns)

	require.NoError(t, err)
	assert.Equal(t, 2, outcome.RulesUsed)
	assert.Equal(t, "Restaurants", outcome.Transactions[0].Category)
	assert.Equal(t, "Restaurants", outcome.Transactions[1].Category)
	assert.Equal(t, "Transport", outcome.Transactions[2].Category)

	// Only the vendor no rule covered goes into the batched prompt.
	require.Equal(t, 1, llmClient.calls)
	prompt := strings.Join(llmClient.prompts, "\n")
	assert.Contains(t, prompt, "SHELL OIL")
	assert.NotContains(t, prompt, "STARBUCKS")
}

func TestCategorizeLLMFailureDegradesToUncategorized(t *testing.T) {
	llmClient := &fakeLLM{err: fmt.Errorf("request failed: context deadline exceeded")}
	engine := NewEngine(newFakeStorage(), llmClient, nil, nil, nil)

	outcome, err := engine.Categorize(context.Background(), "u1",
		[]model.Transaction{debit("MYSTERY VENDOR", "MYSTERY VENDOR 42", 10.00)})

	require.NoError(t, err)
	assert.False(t, outcome.LLMUsed)
	assert.Equal(t, model.Uncategorized, outcome.Transactions[0].Category)
	assert.NotEmpty(t, outcome.Warnings)
	assert.Zero(t, outcome.Confidence)
}

func TestCategorizeGarbageLLMResponseDegrades(t *testing.T) {
	llmClient := &fakeLLM{response: "sorry, I cannot help with that"}
	engine := NewEngine(newFakeStorage(), llmClient, nil, nil, nil)

	outcome, err := engine.Categorize(context.Background(), "u1",
		[]model.Transaction{debit("MYSTERY VENDOR", "MYSTERY VENDOR 42", 10.00)})

	require.NoError(t, err)
	assert.Equal(t, model.Uncategorized, outcome.Transactions[0].Category)
	assert.NotEmpty(t, outcome.Warnings)
}

func TestCategorizeRejectsUnknownCategoriesAndVendors(t *testing.T) {
	llmClient := &fakeLLM{response: `{"MYSTERY VENDOR": "Restaurants", "INVENTED VENDOR": "Groceries", "OTHER VENDOR": "Cryptocurrency"}`}
	engine := NewEngine(newFakeStorage(), llmClient, nil, nil, nil)

	txns := []model.Transaction{
		debit("MYSTERY VENDOR", "MYSTERY VENDOR 42", 10.00),
		debit("OTHER VENDOR", "OTHER VENDOR 7", 20.00),
	}
	outcome, err := engine.Categorize(context.Background(), "u1", txns)

	require.NoError(t, err)
	assert.Equal(t, "Restaurants", outcome.Transactions[0].Category)
	// Unknown category is rejected, not passed through.
	assert.Equal(t, model.Uncategorized, outcome.Transactions[1].Category)
}

func TestCategorizeUncategorizedAnswerIsNotLearned(t *testing.T) {
	llmClient := &fakeLLM{response: `{"MYSTERY VENDOR": "Uncategorized"}`}
	storage := newFakeStorage()
	learning := NewLearningStore()
	engine := NewEngine(storage, llmClient, learning, nil, nil)

	outcome, err := engine.Categorize(context.Background(), "u1",
		[]model.Transaction{debit("MYSTERY VENDOR", "MYSTERY VENDOR 42", 10.00)})

	require.NoError(t, err)
	assert.Equal(t, model.Uncategorized, outcome.Transactions[0].Category)

	// The sentinel must not become a durable rule or a learned entry that
	// would shield the vendor from a future attempt.
	rules, err := storage.GetRulesForUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, rules)
	_, _, ok := learning.Lookup("u1", "MYSTERY VENDOR")
	assert.False(t, ok)
}

func TestCategorizeVendorCacheSkipsLLM(t *testing.T) {
	llmClient := &fakeLLM{response: `{"STARBUCKS": "Restaurants"}`}
	cache := NewVendorCache()
	learning := NewLearningStore()
	engine := NewEngine(newFakeStorage(), llmClient, learning, cache, nil)

	ctx := context.Background()
	txns := []model.Transaction{debit("STARBUCKS", "STARBUCKS #1", 5.75)}

	_, err := engine.Categorize(ctx, "u1", txns)
	require.NoError(t, err)
	require.Equal(t, 1, llmClient.calls)

	// Second document for the same vendor: the learning store (seeded by
	// the first run) answers and the LLM is not consulted again.
	outcome, err := engine.Categorize(ctx, "u1", txns)
	require.NoError(t, err)
	assert.Equal(t, 1, llmClient.calls)
	assert.Equal(t, "Restaurants", outcome.Transactions[0].Category)
}

func TestCategorizeNoLLMClient(t *testing.T) {
	engine := NewEngine(newFakeStorage(), nil, nil, nil, nil)

	outcome, err := engine.Categorize(context.Background(), "u1",
		[]model.Transaction{debit("MYSTERY VENDOR", "MYSTERY VENDOR 42", 10.00)})

	require.NoError(t, err)
	assert.Equal(t, model.Uncategorized, outcome.Transactions[0].Category)
}

func TestLearnFromCorrection(t *testing.T) {
	storage := newFakeStorage()
	learning := NewLearningStore()
	engine := NewEngine(storage, nil, learning, nil, nil)

	err := engine.LearnFromCorrection(context.Background(), "u1", "SHELL OIL", "Transport")
	require.NoError(t, err)

	category, confidence, ok := learning.Lookup("u1", "SHELL OIL")
	require.True(t, ok)
	assert.Equal(t, "Transport", category)
	assert.InDelta(t, 0.9, confidence, 0.001)

	rules, err := storage.GetRulesForUser(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, model.RuleSourceUser, rules[0].Source)

	// A repeated confirmation reinforces the entry.
	require.NoError(t, engine.LearnFromCorrection(context.Background(), "u1", "SHELL OIL", "Transport"))
	_, confidence, ok = learning.Lookup("u1", "SHELL OIL")
	require.True(t, ok)
	assert.InDelta(t, 1.0, confidence, 0.001)
}

func TestLearnFromCorrectionRejectsUnknownCategory(t *testing.T) {
	engine := NewEngine(newFakeStorage(), nil, nil, nil, nil)

	err := engine.LearnFromCorrection(context.Background(), "u1", "SHELL OIL", "Cryptocurrency")
	assert.Error(t, err)
}

func TestBuildBatchPromptCapsExamples(t *testing.T) {
	vendors := map[string][]model.Transaction{
		"STARBUCKS": {
			debit("STARBUCKS", "STARBUCKS #1", 1),
			debit("STARBUCKS", "STARBUCKS #2", 2),
			debit("STARBUCKS", "STARBUCKS #3", 3),
			debit("STARBUCKS", "STARBUCKS #4", 4),
		},
	}

	prompt := buildBatchPrompt(vendors)

	assert.Contains(t, prompt, "STARBUCKS #3")
	assert.NotContains(t, prompt, "STARBUCKS #4")
	for _, c := range model.Categories() {
		assert.Contains(t, prompt, c)
	}
}
