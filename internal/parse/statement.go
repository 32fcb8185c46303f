// Package parse turns redacted document text into transactions. Bank
// statements are matched line by line against known layouts; receipts and
// invoices are reduced to a single total. Malformed lines are skipped and
// counted, never fatal.
package parse

import (
	"regexp"
	"strings"

	"github.com/Veraticus/paperflow/internal/model"
)

// StatementResult is the outcome of parsing a bank statement.
type StatementResult struct {
	Transactions []model.Transaction
	SkippedLines int
	Confidence   float64
}

const (
	datePat   = `\d{4}-\d{2}-\d{2}|\d{2}/\d{2}/\d{4}|\d{2}-\d{2}-\d{4}|\d{4}/\d{2}/\d{2}`
	amountPat = `[+-]?\d[\d,]*(?:\.\d+)?`
	// centsPat is the stricter form used where an amount must be
	// distinguished from description noise like store numbers.
	centsPat = `[+-]?\d[\d,]*\.\d{2}`
)

// Statement line layouts, tried in order:
//
//	date description amount balance   (balance ignored)
//	date description amount
//	date amount description
//	date description $amount
//	date description (amount)         (parenthesized credits)
type linePattern struct {
	re        *regexp.Regexp
	amountIdx int
	descIdx   int
	credit    bool
}

var linePatterns = []linePattern{
	{re: regexp.MustCompile(`^(` + datePat + `)\s+(.+?)\s+(` + centsPat + `)\s+(` + centsPat + `)$`), descIdx: 2, amountIdx: 3},
	{re: regexp.MustCompile(`^(` + datePat + `)\s+(.+?)\s+(` + amountPat + `)$`), descIdx: 2, amountIdx: 3},
	{re: regexp.MustCompile(`^(` + datePat + `)\s+(` + amountPat + `)\s+(.+)$`), descIdx: 3, amountIdx: 2},
	{re: regexp.MustCompile(`^(` + datePat + `)\s+(.+?)\s+\$(` + amountPat + `)$`), descIdx: 2, amountIdx: 3},
	{re: regexp.MustCompile(`^(` + datePat + `)\s+(.+?)\s+\((` + amountPat + `)\)$`), descIdx: 2, amountIdx: 3, credit: true},
}

// ParseStatement matches each non-empty line against the known layouts.
// Lines that match no layout, or match one but carry an unparseable date or
// amount, are counted as skipped.
func ParseStatement(text string) StatementResult {
	var result StatementResult
	var totalLines int

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		totalLines++

		txn, ok := parseStatementLine(line)
		if !ok {
			result.SkippedLines++
			continue
		}
		result.Transactions = append(result.Transactions, txn)
	}

	result.Confidence = statementConfidence(result.Transactions, totalLines)
	return result
}

func parseStatementLine(line string) (model.Transaction, bool) {
	for _, p := range linePatterns {
		m := p.re.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		date, err := parseDate(m[1])
		if err != nil {
			return model.Transaction{}, false
		}
		amount, err := parseAmount(m[p.amountIdx])
		if err != nil || amount == 0 {
			return model.Transaction{}, false
		}
		if p.credit && amount < 0 {
			amount = -amount
		}

		direction := model.DirectionCredit
		if amount < 0 {
			direction = model.DirectionDebit
		}

		description := strings.TrimSpace(m[p.descIdx])
		return model.Transaction{
			Date:        date,
			Merchant:    NormalizeMerchant(description),
			Description: description,
			Amount:      amount,
			Direction:   direction,
			Source:      model.SourceParsed,
		}, true
	}
	return model.Transaction{}, false
}

// statementConfidence blends parse success rate with per-transaction field
// quality.
func statementConfidence(txns []model.Transaction, totalLines int) float64 {
	if len(txns) == 0 || totalLines == 0 {
		return 0
	}

	successRate := float64(len(txns)) / float64(totalLines)

	var quality float64
	for i := range txns {
		t := &txns[i]
		if y := t.Date.Year(); y > 1900 && y < 2100 {
			quality += 0.3
		}
		if a := t.AbsAmount(); a > 0 && a < 100000 {
			quality += 0.3
		}
		if len(t.Description) > 3 {
			quality += 0.2
		}
		if len(t.Merchant) > 2 {
			quality += 0.2
		}
	}
	avgQuality := quality / float64(len(txns))

	confidence := successRate*0.6 + avgQuality*0.4
	if confidence > 1.0 {
		confidence = 1.0
	}
	return confidence
}
