// Package storage provides the SQLite persistence layer for documents,
// transactions, and categorization rules.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/paperflow/internal/model"
)

// Validation errors.
var (
	ErrNilContext         = errors.New("context cannot be nil")
	ErrEmptyString        = errors.New("string parameter cannot be empty")
	ErrNilParameter       = errors.New("parameter cannot be nil")
	ErrInvalidDocument    = errors.New("invalid document")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrInvalidRule        = errors.New("invalid rule")
)

func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

func validateStoredDocument(doc *model.StoredDocument) error {
	if doc == nil {
		return fmt.Errorf("%w: document", ErrNilParameter)
	}
	if doc.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidDocument)
	}
	if doc.UserID == "" {
		return fmt.Errorf("%w: missing user ID", ErrInvalidDocument)
	}
	if doc.ContentHash == "" {
		return fmt.Errorf("%w: missing content hash", ErrInvalidDocument)
	}
	switch doc.Status {
	case model.StatusProcessing, model.StatusCompleted, model.StatusFailed:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidDocument, doc.Status)
	}
	return nil
}

func validateStoredTransactions(txns []model.StoredTransaction, documentID string) error {
	for i := range txns {
		txn := &txns[i]
		if txn.ID == "" {
			return fmt.Errorf("%w: transaction %d missing ID", ErrInvalidTransaction, i)
		}
		if txn.DocumentID != documentID {
			return fmt.Errorf("%w: transaction %d references document %q", ErrInvalidTransaction, i, txn.DocumentID)
		}
		if txn.Category == "" {
			return fmt.Errorf("%w: transaction %d missing category", ErrInvalidTransaction, i)
		}
	}
	return nil
}

func validateRule(rule *model.CategorizationRule) error {
	if rule == nil {
		return fmt.Errorf("%w: rule", ErrNilParameter)
	}
	if strings.TrimSpace(rule.UserID) == "" {
		return fmt.Errorf("%w: missing user ID", ErrInvalidRule)
	}
	if strings.TrimSpace(rule.Keyword) == "" {
		return fmt.Errorf("%w: missing keyword", ErrInvalidRule)
	}
	if !model.ValidCategory(rule.Category) {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidRule, rule.Category)
	}
	switch rule.Source {
	case model.RuleSourceLearned, model.RuleSourceUser:
	default:
		return fmt.Errorf("%w: unknown source %q", ErrInvalidRule, rule.Source)
	}
	return nil
}
