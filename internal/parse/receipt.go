package parse

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/Veraticus/paperflow/internal/model"
)

// ReceiptResult is the outcome of parsing a receipt or invoice. Transaction
// is nil when no usable total was found.
type ReceiptResult struct {
	Transaction *model.Transaction
	Confidence  float64
}

var (
	receiptTotalRe = regexp.MustCompile(`(?i)(?:total|amount|sum)\s*(?:due)?:?\s*\$?(` + amountPat + `)`)
	receiptDateRe  = regexp.MustCompile(datePat)
	anyNumberRe    = regexp.MustCompile(`\d`)
)

// ParseReceipt reduces a receipt to a single debit: the first labeled total,
// the first recognizable date, and the first short number-free line as the
// merchant.
func ParseReceipt(text string) ReceiptResult {
	return parseSingleTotal(text, model.SourceParsed)
}

// InvoiceFallback handles statements with no repeating line pattern. If a
// total is still detectable the document is treated as a single-line-item
// invoice and exactly one transaction is synthesized, tagged so downstream
// consumers can flag it for review.
func InvoiceFallback(text string) ReceiptResult {
	return parseSingleTotal(text, model.SourceAIInferred)
}

func parseSingleTotal(text string, source model.TxnSource) ReceiptResult {
	lines := nonEmptyTrimmedLines(text)

	var total float64
	var totalFound bool
	for _, line := range lines {
		m := receiptTotalRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		amount, err := parseAmount(m[1])
		if err == nil && amount > 0 {
			total = amount
			totalFound = true
			break
		}
	}

	var date time.Time
	var dateFound bool
	for _, line := range lines {
		m := receiptDateRe.FindString(line)
		if m == "" {
			continue
		}
		if parsed, err := parseDate(m); err == nil {
			date = parsed
			dateFound = true
			break
		}
	}

	merchant := "Unknown Merchant"
	for _, line := range lines {
		if len(line) > 5 && len(line) < 50 && !anyNumberRe.MatchString(line) {
			merchant = NormalizeMerchant(line)
			break
		}
	}

	result := ReceiptResult{Confidence: receiptConfidence(totalFound, dateFound)}
	if !totalFound {
		return result
	}

	// A receipt total is money spent: stored as a negative debit.
	result.Transaction = &model.Transaction{
		Date:        date,
		Merchant:    merchant,
		Description: fmt.Sprintf("Receipt from %s", merchant),
		Amount:      -total,
		Direction:   model.DirectionDebit,
		Source:      source,
	}
	return result
}

func receiptConfidence(totalFound, dateFound bool) float64 {
	var confidence float64
	if totalFound {
		confidence += 0.4
	}
	if dateFound {
		confidence += 0.3
	}
	if totalFound {
		// A transaction will be synthesized.
		confidence += 0.3
	}
	return confidence
}

func nonEmptyTrimmedLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
