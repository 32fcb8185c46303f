package model

import (
	"fmt"
	"time"
)

// Direction indicates whether money left or entered the account.
type Direction string

const (
	// DirectionDebit is money going out.
	DirectionDebit Direction = "debit"
	// DirectionCredit is money coming in.
	DirectionCredit Direction = "credit"
)

// TxnSource records how a stored transaction was produced, for auditability.
type TxnSource string

const (
	// SourceParsed means the transaction came from a matched line pattern.
	SourceParsed TxnSource = "parsed"
	// SourceRegexFallback means a looser pattern recovered it.
	SourceRegexFallback TxnSource = "regex_fallback"
	// SourceAIInferred means it was synthesized (invoice fallback).
	SourceAIInferred TxnSource = "ai_inferred"
)

// Transaction is a raw parsed transaction. Amount is signed: debits are
// negative, credits positive. Category is absent until categorization
// assigns one.
type Transaction struct {
	Date        time.Time
	Merchant    string
	Description string
	Source      TxnSource
	Amount      float64
	Direction   Direction
}

// Validate enforces the sign/direction agreement invariant. A conflict is a
// parser bug, never silently fixed.
func (t *Transaction) Validate() error {
	if t.Amount < 0 && t.Direction != DirectionDebit {
		return fmt.Errorf("transaction %q: negative amount with direction %s", t.Description, t.Direction)
	}
	if t.Amount > 0 && t.Direction != DirectionCredit {
		return fmt.Errorf("transaction %q: positive amount with direction %s", t.Description, t.Direction)
	}
	return nil
}

// AbsAmount returns the magnitude of the transaction amount.
func (t *Transaction) AbsAmount() float64 {
	return abs(t.Amount)
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// CategorizedTransaction is a transaction after categorization. Category is
// always non-empty; the Uncategorized sentinel is used when nothing matched.
type CategorizedTransaction struct {
	Transaction
	Category    string
	Subcategory string
	Confidence  float64
}

// StoredTransaction is the persisted row referencing its document.
type StoredTransaction struct {
	Date        time.Time
	ID          string
	DocumentID  string
	UserID      string
	Merchant    string
	Description string
	Category    string
	Subcategory string
	Source      TxnSource
	Direction   Direction
	Amount      float64
}
