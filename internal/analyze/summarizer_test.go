package analyze

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/paperflow/internal/model"
	"github.com/Veraticus/paperflow/internal/service"
)

type stubLLM struct {
	response string
	err      error
	prompt   string
}

func (s *stubLLM) Complete(_ context.Context, req service.ChatRequest) (service.ChatResponse, error) {
	for _, m := range req.Messages {
		if m.Role == "user" {
			s.prompt = m.Content
		}
	}
	if s.err != nil {
		return service.ChatResponse{}, s.err
	}
	return service.ChatResponse{Content: s.response}, nil
}

func sampleAnalysis() model.DocumentAnalysis {
	return Compute([]model.CategorizedTransaction{
		categorized("STARBUCKS", "Restaurants", -5.75, 10),
		categorized("SHELL OIL", "Transport", -42.00, 12),
		categorized("EMPLOYER", "Income", 2500.00, 15),
	})
}

func TestSummarizeUsesLLM(t *testing.T) {
	llm := &stubLLM{response: "A tidy month: mostly fuel and coffee, with one payroll deposit."}
	s := NewSummarizer(llm, nil)

	summary := s.Summarize(context.Background(), model.DocTypeBankStatement, "jan.pdf", sampleAnalysis(), nil)

	assert.Equal(t, "A tidy month: mostly fuel and coffee, with one payroll deposit.", summary)
	assert.Contains(t, llm.prompt, "Total transactions: 3")
	assert.Contains(t, llm.prompt, "jan.pdf")
	assert.Contains(t, llm.prompt, "bank statement")
}

func TestSummarizeFallsBackOnError(t *testing.T) {
	llm := &stubLLM{err: fmt.Errorf("context deadline exceeded")}
	s := NewSummarizer(llm, nil)

	summary := s.Summarize(context.Background(), model.DocTypeBankStatement, "jan.pdf", sampleAnalysis(), nil)

	require.NotEmpty(t, summary)
	assert.Contains(t, summary, "3 transactions")
	assert.Contains(t, summary, "$47.75")
	assert.Contains(t, summary, "Income")
}

func TestSummarizeFallsBackOnEmptyCompletion(t *testing.T) {
	llm := &stubLLM{response: "   "}
	s := NewSummarizer(llm, nil)

	summary := s.Summarize(context.Background(), model.DocTypeReceipt, "receipt.jpg", sampleAnalysis(), nil)

	assert.NotEmpty(t, strings.TrimSpace(summary))
}

func TestSummarizeNilClientUsesFallback(t *testing.T) {
	s := NewSummarizer(nil, nil)

	summary := s.Summarize(context.Background(), model.DocTypeBankStatement, "jan.pdf", sampleAnalysis(), nil)

	assert.NotEmpty(t, summary)
}

func TestSummarizeZeroTransactionsFallback(t *testing.T) {
	s := NewSummarizer(nil, nil)

	summary := s.Summarize(context.Background(), model.DocTypeBankStatement, "odd.pdf", model.DocumentAnalysis{}, nil)

	assert.Contains(t, summary, "couldn't reliably detect any structured financial transactions")
	assert.Contains(t, summary, "bank statement")
}

func TestSummarizeInferredTransactionNoted(t *testing.T) {
	llm := &stubLLM{response: "One inferred invoice transaction; worth a review."}
	s := NewSummarizer(llm, nil)

	inferred := categorized("Acme Consulting", "Other", -42.17, 31)
	inferred.Source = model.SourceAIInferred

	s.Summarize(context.Background(), model.DocTypeBankStatement, "invoice.pdf", sampleAnalysis(), &inferred)

	assert.Contains(t, llm.prompt, "inferred")
	assert.Contains(t, llm.prompt, "Acme Consulting")
	assert.Contains(t, llm.prompt, "42.17")
}
