// Package categorize assigns categories to parsed transactions through a
// three-tier strategy: durable keyword rules, a per-user learning store,
// and a single batched LLM call for whatever is left.
package categorize

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/Veraticus/paperflow/internal/model"
	"github.com/Veraticus/paperflow/internal/service"
)

const (
	// learnedConfidenceFloor gates the learning tier: weaker entries are
	// ignored and the vendor goes to the LLM instead.
	learnedConfidenceFloor = 0.8
	// llmConfidence is the fixed outcome confidence after a successful
	// batched LLM call.
	llmConfidence = 0.92
)

// Engine runs the tiers. Shared stores are injected so multiple engines
// can serve concurrent pipelines against the same state.
type Engine struct {
	storage  service.Storage
	llm      service.LLMClient
	learning *LearningStore
	cache    *VendorCache
	logger   *slog.Logger
}

// Outcome is the result of categorizing one document's transactions.
type Outcome struct {
	Transactions []model.CategorizedTransaction
	Warnings     []string
	RulesUsed    int
	LLMUsed      bool
	Confidence   float64
}

// NewEngine creates a categorization engine. The LLM client may be nil, in
// which case the third tier is skipped and unmatched transactions stay
// Uncategorized.
func NewEngine(storage service.Storage, llmClient service.LLMClient, learning *LearningStore, cache *VendorCache, logger *slog.Logger) *Engine {
	if learning == nil {
		learning = NewLearningStore()
	}
	if cache == nil {
		cache = NewVendorCache()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		storage:  storage,
		llm:      llmClient,
		learning: learning,
		cache:    cache,
		logger:   logger,
	}
}

// Categorize resolves a category for every transaction. Tiers short-circuit
// per transaction; LLM failure degrades to Uncategorized rather than
// returning an error.
func (e *Engine) Categorize(ctx context.Context, userID string, txns []model.Transaction) (Outcome, error) {
	outcome := Outcome{Transactions: make([]model.CategorizedTransaction, len(txns))}
	if len(txns) == 0 {
		return outcome, nil
	}

	rules, err := e.loadRules(ctx, userID)
	if err != nil {
		outcome.Warnings = append(outcome.Warnings, fmt.Sprintf("categorization rules unavailable: %v", err))
	}

	// pending groups still-uncategorized transaction indexes by vendor.
	pending := make(map[string][]int)

	for i := range txns {
		txn := txns[i]
		ct := model.CategorizedTransaction{Transaction: txn, Category: model.Uncategorized}

		if rule := bestRuleMatch(rules, &txn); rule != nil {
			ct.Category = rule.Category
			ct.Subcategory = rule.Subcategory
			ct.Confidence = 1.0
			outcome.RulesUsed++
			rule.MatchCount++
			if err := e.storage.IncrementRuleMatchCount(ctx, rule.ID); err != nil {
				e.logger.Warn("failed to increment rule match count", "rule_id", rule.ID, "error", err)
			}
		} else if category, confidence, ok := e.learning.Lookup(userID, txn.Merchant); ok && confidence >= learnedConfidenceFloor {
			ct.Category = category
			ct.Confidence = confidence
		} else if category, ok := e.cache.Get(userID, txn.Merchant); ok {
			ct.Category = category
			ct.Confidence = llmConfidence
		} else if txn.Merchant != "" {
			pending[txn.Merchant] = append(pending[txn.Merchant], i)
		}

		outcome.Transactions[i] = ct
	}

	if len(pending) > 0 && e.llm != nil {
		e.runLLMTier(ctx, userID, txns, pending, &outcome)
	}

	outcome.Confidence = e.outcomeConfidence(&outcome)
	return outcome, nil
}

// runLLMTier issues the single batched call for all pending vendors and
// applies accepted mappings. Any failure leaves the pending transactions
// Uncategorized and records a warning.
func (e *Engine) runLLMTier(ctx context.Context, userID string, txns []model.Transaction, pending map[string][]int, outcome *Outcome) {
	vendors := make(map[string][]model.Transaction, len(pending))
	for vendor, idxs := range pending {
		for _, i := range idxs {
			if len(vendors[vendor]) < maxExamplesPerVendor {
				vendors[vendor] = append(vendors[vendor], txns[i])
			}
		}
	}

	mapping, err := e.categorizeBatch(ctx, vendors)
	if err != nil {
		e.logger.Warn("LLM categorization failed, leaving transactions uncategorized",
			"user_id", userID, "vendors", len(vendors), "error", err)
		outcome.Warnings = append(outcome.Warnings,
			fmt.Sprintf("vendor categorization unavailable: %v", err))
		return
	}

	outcome.LLMUsed = true
	for vendor, category := range mapping {
		for _, i := range pending[vendor] {
			outcome.Transactions[i].Category = category
			outcome.Transactions[i].Confidence = llmConfidence
		}
		e.cache.Put(userID, vendor, category)
		e.learning.Observe(userID, vendor, category)
		e.persistLearnedRule(ctx, userID, vendor, category)
	}
}

func (e *Engine) persistLearnedRule(ctx context.Context, userID, vendor, category string) {
	rule := model.CategorizationRule{
		UserID:   userID,
		Keyword:  vendorKey(vendor),
		Category: category,
		Source:   model.RuleSourceLearned,
	}
	if e.storage == nil {
		return
	}
	if err := e.storage.SaveRule(ctx, &rule); err != nil {
		e.logger.Warn("failed to persist learned rule",
			"user_id", userID, "vendor", vendor, "error", err)
	}
}

// LearnFromCorrection records a human correction: a reinforced learning
// entry, a refreshed cache, and a durable user-sourced rule.
func (e *Engine) LearnFromCorrection(ctx context.Context, userID, vendor, category string) error {
	if !model.ValidCategory(category) {
		return fmt.Errorf("unknown category %q", category)
	}
	if strings.TrimSpace(vendor) == "" {
		return fmt.Errorf("vendor is required")
	}

	e.learning.ObserveCorrection(userID, vendor, category)
	e.cache.Put(userID, vendor, category)

	rule := model.CategorizationRule{
		UserID:   userID,
		Keyword:  vendorKey(vendor),
		Category: category,
		Source:   model.RuleSourceUser,
	}
	if e.storage != nil {
		if err := e.storage.SaveRule(ctx, &rule); err != nil {
			return fmt.Errorf("persist correction rule: %w", err)
		}
	}
	return nil
}

func (e *Engine) loadRules(ctx context.Context, userID string) ([]model.CategorizationRule, error) {
	if e.storage == nil {
		return nil, nil
	}
	return e.storage.GetRulesForUser(ctx, userID)
}

// bestRuleMatch finds rules whose keyword appears in merchant+description
// and picks the one with the highest match count, longest keyword on ties.
func bestRuleMatch(rules []model.CategorizationRule, txn *model.Transaction) *model.CategorizationRule {
	haystack := strings.ToLower(txn.Merchant + " " + txn.Description)

	var matches []*model.CategorizationRule
	for i := range rules {
		keyword := strings.ToLower(rules[i].Keyword)
		if keyword != "" && strings.Contains(haystack, keyword) {
			matches = append(matches, &rules[i])
		}
	}
	if len(matches) == 0 {
		return nil
	}

	sort.Slice(matches, func(a, b int) bool {
		if matches[a].MatchCount != matches[b].MatchCount {
			return matches[a].MatchCount > matches[b].MatchCount
		}
		return len(matches[a].Keyword) > len(matches[b].Keyword)
	})
	return matches[0]
}

func (e *Engine) outcomeConfidence(outcome *Outcome) float64 {
	if outcome.LLMUsed {
		return llmConfidence
	}
	if len(outcome.Transactions) == 0 {
		return 0
	}
	var categorized int
	for i := range outcome.Transactions {
		if outcome.Transactions[i].Category != model.Uncategorized {
			categorized++
		}
	}
	return float64(categorized) / float64(len(outcome.Transactions))
}
