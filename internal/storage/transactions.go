package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Veraticus/paperflow/internal/model"
)

// GetTransactionsByDocumentID returns a document's transactions in insert
// order, scoped to the owner.
func (s *SQLiteStorage) GetTransactionsByDocumentID(ctx context.Context, documentID, userID string) ([]model.StoredTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(documentID, "documentID"); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, user_id, date, merchant, description, amount, direction, category, subcategory, source
		 FROM transactions
		 WHERE document_id = ? AND user_id = ?
		 ORDER BY rowid`, documentID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var txns []model.StoredTransaction
	for rows.Next() {
		var txn model.StoredTransaction
		var date sql.NullTime
		var merchant, description, subcategory sql.NullString
		var direction, source string

		if err := rows.Scan(&txn.ID, &txn.DocumentID, &txn.UserID, &date, &merchant,
			&description, &txn.Amount, &direction, &txn.Category, &subcategory, &source); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}

		if date.Valid {
			txn.Date = date.Time
		}
		txn.Merchant = merchant.String
		txn.Description = description.String
		txn.Subcategory = subcategory.String
		txn.Direction = model.Direction(direction)
		txn.Source = model.TxnSource(source)
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return txns, nil
}
