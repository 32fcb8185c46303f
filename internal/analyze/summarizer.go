package analyze

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/paperflow/internal/model"
	"github.com/Veraticus/paperflow/internal/service"
)

const summarySystemPrompt = "You are a financial document assistant. " +
	"You read processed document analytics and explain them clearly and conversationally. " +
	"Never say you cannot read the document; always work with what you have."

// Summarizer produces the per-document natural-language summary. The LLM
// client may be nil; the deterministic fallback always yields text.
type Summarizer struct {
	llm    service.LLMClient
	logger *slog.Logger
}

// NewSummarizer creates a summarizer.
func NewSummarizer(llmClient service.LLMClient, logger *slog.Logger) *Summarizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Summarizer{llm: llmClient, logger: logger}
}

// Summarize returns a non-empty summary. Any LLM failure, timeout, or empty
// completion falls back to a deterministic template built from the analysis
// alone. inferred, when set, is the single transaction synthesized by the
// invoice fallback and must be called out for review.
func (s *Summarizer) Summarize(ctx context.Context, docType model.DocType, fileName string, analysis model.DocumentAnalysis, inferred *model.CategorizedTransaction) string {
	if s.llm == nil {
		return fallbackSummary(docType, analysis)
	}

	resp, err := s.llm.Complete(ctx, service.ChatRequest{
		Messages: []service.ChatMessage{
			{Role: "system", Content: summarySystemPrompt},
			{Role: "user", Content: buildSummaryPrompt(docType, fileName, analysis, inferred)},
		},
	})
	if err != nil {
		s.logger.Warn("LLM summary generation failed, using fallback", "error", err)
		return fallbackSummary(docType, analysis)
	}

	summary := strings.TrimSpace(resp.Content)
	if summary == "" {
		return fallbackSummary(docType, analysis)
	}
	return summary
}

func buildSummaryPrompt(docType model.DocType, fileName string, analysis model.DocumentAnalysis, inferred *model.CategorizedTransaction) string {
	var categoryParts []string
	for i, cat := range analysis.ByCategory {
		if i == 5 {
			break
		}
		categoryParts = append(categoryParts,
			fmt.Sprintf("%s: %d transactions, $%.2f", cat.Category, cat.Count, cat.TotalAmount))
	}

	dateRange := "Not specified"
	if analysis.Period.StartDate != nil && analysis.Period.EndDate != nil {
		dateRange = fmt.Sprintf("from %s to %s",
			analysis.Period.StartDate.Format("2006-01-02"),
			analysis.Period.EndDate.Format("2006-01-02"))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Generate a clear, helpful summary of this processed %s:\n\n", docType.Label())
	fmt.Fprintf(&b, "Document: %s\n", fileName)
	fmt.Fprintf(&b, "Total transactions: %d\n", analysis.TotalTransactions)
	fmt.Fprintf(&b, "Total debits (spending): $%.2f\n", analysis.TotalDebits)
	fmt.Fprintf(&b, "Total credits (income): $%.2f\n", analysis.TotalCredits)
	fmt.Fprintf(&b, "Date range: %s\n", dateRange)
	fmt.Fprintf(&b, "Top categories: %s\n", strings.Join(categoryParts, "; "))

	if inferred != nil {
		date := "Unknown"
		if !inferred.Date.IsZero() {
			date = inferred.Date.Format("2006-01-02")
		}
		fmt.Fprintf(&b, "\nIMPORTANT: this document appeared to be a single invoice/receipt. "+
			"One inferred transaction was created from it:\n- Merchant: %s\n- Date: %s\n- Amount: $%.2f\n"+
			"Mention that this transaction was inferred and may need review.\n",
			inferred.Merchant, date, inferred.AbsAmount())
	}

	b.WriteString("\nKeep it concise (2-3 sentences), plain English, no markdown. " +
		"Focus on transaction count, spending vs inflows, and top categories. " +
		"PII has already been redacted from this document.")
	return b.String()
}

// fallbackSummary is the deterministic template used whenever the LLM is
// unavailable. It must always produce text, including for documents where
// no structured transactions were found.
func fallbackSummary(docType model.DocType, analysis model.DocumentAnalysis) string {
	label := docType.Label()

	if analysis.TotalTransactions == 0 {
		return fmt.Sprintf("I finished reviewing your %s, but I couldn't reliably detect any structured "+
			"financial transactions. This sometimes happens with unsupported formats, very low-quality "+
			"scans, or documents that don't follow standard statement layouts. The document has been "+
			"saved along with its extracted text, so you can still ask questions about its contents.", label)
	}

	dateRange := ""
	if analysis.Period.StartDate != nil && analysis.Period.EndDate != nil {
		dateRange = fmt.Sprintf(" covering %s to %s",
			analysis.Period.StartDate.Format("2006-01-02"),
			analysis.Period.EndDate.Format("2006-01-02"))
	}

	plural := "s"
	if analysis.TotalTransactions == 1 {
		plural = ""
	}

	var flow []string
	if analysis.TotalDebits > 0 {
		flow = append(flow, fmt.Sprintf("total spending of $%.2f", analysis.TotalDebits))
	}
	if analysis.TotalCredits > 0 {
		flow = append(flow, fmt.Sprintf("inflows of $%.2f", analysis.TotalCredits))
	}
	flowText := ""
	if len(flow) > 0 {
		flowText = " with " + strings.Join(flow, " and ")
	}

	summary := fmt.Sprintf("This %s%s contains %d transaction%s%s.",
		label, dateRange, analysis.TotalTransactions, plural, flowText)

	if len(analysis.ByCategory) > 0 {
		top := analysis.ByCategory[0]
		topPlural := "s"
		if top.Count == 1 {
			topPlural = ""
		}
		summary += fmt.Sprintf(" Your top spending category is %s with %d transaction%s totaling $%.2f.",
			top.Category, top.Count, topPlural, top.TotalAmount)
	}

	return summary
}
