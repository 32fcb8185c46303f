package parse

import (
	"github.com/Veraticus/paperflow/internal/common"
	"github.com/Veraticus/paperflow/internal/model"
)

// Result is the document-level parse outcome.
type Result struct {
	Transactions []model.Transaction
	SkippedLines int
	Confidence   float64
	// Inferred marks results produced by the invoice fallback rather than
	// pattern matching.
	Inferred bool
}

// ParseDocument dispatches on the declared document type. Statements with no
// repeating line pattern fall back to single-invoice handling before giving
// up. Returns common.ErrNoTransactions when nothing usable was found; the
// caller decides whether that is fatal.
func ParseDocument(text string, docType model.DocType) (Result, error) {
	switch docType {
	case model.DocTypeBankStatement:
		stmt := ParseStatement(text)
		if len(stmt.Transactions) > 0 {
			return Result{
				Transactions: stmt.Transactions,
				SkippedLines: stmt.SkippedLines,
				Confidence:   stmt.Confidence,
			}, nil
		}

		fallback := InvoiceFallback(text)
		if fallback.Transaction != nil {
			return Result{
				Transactions: []model.Transaction{*fallback.Transaction},
				SkippedLines: stmt.SkippedLines,
				Confidence:   fallback.Confidence,
				Inferred:     true,
			}, nil
		}
		return Result{SkippedLines: stmt.SkippedLines}, common.ErrNoTransactions

	case model.DocTypeReceipt:
		receipt := ParseReceipt(text)
		if receipt.Transaction == nil {
			return Result{}, common.ErrNoTransactions
		}
		return Result{
			Transactions: []model.Transaction{*receipt.Transaction},
			Confidence:   receipt.Confidence,
		}, nil

	default:
		return Result{}, common.ErrNoTransactions
	}
}
