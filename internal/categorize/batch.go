package categorize

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Veraticus/paperflow/internal/common"
	"github.com/Veraticus/paperflow/internal/llm"
	"github.com/Veraticus/paperflow/internal/model"
	"github.com/Veraticus/paperflow/internal/service"
)

const maxExamplesPerVendor = 3

const batchSystemPrompt = "You are a financial transaction categorizer. " +
	"You MUST respond with ONLY a valid JSON object mapping each vendor name to one category. " +
	"Do not include any explanatory text, markdown formatting, or commentary. " +
	"Start your response directly with { and end with }."

// buildBatchPrompt renders one prompt covering every uncategorized vendor,
// with up to three example transactions each. Vendors are sorted so the
// prompt is stable for a given input.
func buildBatchPrompt(vendors map[string][]model.Transaction) string {
	names := make([]string, 0, len(vendors))
	for name := range vendors {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("Assign exactly one category to each vendor below.\n\n")
	b.WriteString("Allowed categories:\n")
	for _, c := range model.Categories() {
		fmt.Fprintf(&b, "- %s\n", c)
	}

	b.WriteString("\nVendors:\n")
	for _, name := range names {
		fmt.Fprintf(&b, "\n%s\n", name)
		examples := vendors[name]
		if len(examples) > maxExamplesPerVendor {
			examples = examples[:maxExamplesPerVendor]
		}
		for _, txn := range examples {
			fmt.Fprintf(&b, "  - %s %.2f (%s)\n", txn.Description, txn.AbsAmount(), txn.Direction)
		}
	}

	b.WriteString("\nRespond with a JSON object mapping every vendor name above to one allowed category, for example:\n")
	b.WriteString(`{"VENDOR NAME": "Groceries"}`)
	return b.String()
}

// categorizeBatch issues the single batched LLM call and validates the
// returned mapping. Vendors the model did not answer for, answered with an
// unknown category, or invented entirely are dropped.
func (e *Engine) categorizeBatch(ctx context.Context, vendors map[string][]model.Transaction) (map[string]string, error) {
	var resp service.ChatResponse
	err := common.WithRetry(ctx, func() error {
		var callErr error
		resp, callErr = e.llm.Complete(ctx, service.ChatRequest{
			Messages: []service.ChatMessage{
				{Role: "system", Content: batchSystemPrompt},
				{Role: "user", Content: buildBatchPrompt(vendors)},
			},
		})
		return callErr
	}, service.RetryOptions{MaxAttempts: 2, InitialDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("batch categorization call: %w", err)
	}

	return parseBatchResponse(resp.Content, vendors)
}

func parseBatchResponse(content string, requested map[string][]model.Transaction) (map[string]string, error) {
	cleaned := llm.CleanMarkdownWrapper(content)

	var raw map[string]string
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, fmt.Errorf("parse batch response: %w", err)
	}

	// Accept only vendors that were actually requested, matched
	// case-insensitively, and only real categories from the closed set. An
	// Uncategorized answer is dropped so the vendor is retried next time
	// instead of being learned as permanently unknowable.
	requestedByKey := make(map[string]string, len(requested))
	for name := range requested {
		requestedByKey[vendorKey(name)] = name
	}

	accepted := make(map[string]string)
	for vendor, category := range raw {
		name, ok := requestedByKey[vendorKey(vendor)]
		if !ok {
			continue
		}
		if category == model.Uncategorized || !model.ValidCategory(category) {
			continue
		}
		accepted[name] = category
	}

	if len(accepted) == 0 {
		return nil, fmt.Errorf("batch response contained no usable mappings")
	}
	return accepted, nil
}
