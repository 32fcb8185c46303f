package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/paperflow/internal/common"
	"github.com/Veraticus/paperflow/internal/model"
)

const documentColumns = `id, user_id, file_name, doc_type, status, summary, redacted_url,
	content_hash, transaction_count, total_debits, total_credits,
	period_start, period_end, uploaded_at`

// FindDocumentByHash looks up a document by its deduplication key. Absence
// is not an error; it returns (nil, nil).
func (s *SQLiteStorage) FindDocumentByHash(ctx context.Context, userID, contentHash string) (*model.StoredDocument, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}
	if err := validateString(contentHash, "contentHash"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE user_id = ? AND content_hash = ?`,
		userID, contentHash)

	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find document by hash: %w", err)
	}
	return doc, nil
}

// SaveDocumentWithTransactions persists the document and its transactions
// atomically. Either everything lands or nothing does.
func (s *SQLiteStorage) SaveDocumentWithTransactions(ctx context.Context, doc *model.StoredDocument, txns []model.StoredTransaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateStoredDocument(doc); err != nil {
		return err
	}
	if err := validateStoredTransactions(txns, doc.ID); err != nil {
		return err
	}

	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", common.ErrPersistence, err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (`+documentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.UserID, doc.FileName, string(doc.DocType), string(doc.Status),
		doc.Summary, doc.RedactedURL, doc.ContentHash, doc.TransactionCount,
		doc.TotalDebits, doc.TotalCredits,
		nullableTime(doc.PeriodStart), nullableTime(doc.PeriodEnd), doc.UploadedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: document for this content already exists", common.ErrDuplicateEntry)
		}
		return fmt.Errorf("%w: failed to insert document: %v", common.ErrPersistence, err)
	}

	for i := range txns {
		txn := &txns[i]
		_, err = tx.ExecContext(ctx,
			`INSERT INTO transactions
				(id, document_id, user_id, date, merchant, description, amount, direction, category, subcategory, source)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			txn.ID, txn.DocumentID, txn.UserID, nullableDate(txn.Date), txn.Merchant,
			txn.Description, txn.Amount, string(txn.Direction), txn.Category,
			txn.Subcategory, string(txn.Source))
		if err != nil {
			return fmt.Errorf("%w: failed to insert transaction %d: %v", common.ErrPersistence, i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit document: %v", common.ErrPersistence, err)
	}
	return nil
}

// GetDocumentByID fetches one document scoped to its owner.
func (s *SQLiteStorage) GetDocumentByID(ctx context.Context, id, userID string) (*model.StoredDocument, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ? AND user_id = ?`, id, userID)

	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: document %s", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// ListDocuments returns a user's documents, newest first.
func (s *SQLiteStorage) ListDocuments(ctx context.Context, userID string) ([]model.StoredDocument, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE user_id = ? ORDER BY uploaded_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var docs []model.StoredDocument
	for rows.Next() {
		doc, scanErr := scanDocument(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan document: %w", scanErr)
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}
	return docs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*model.StoredDocument, error) {
	var doc model.StoredDocument
	var docType, status string
	var summary, redactedURL sql.NullString
	var periodStart, periodEnd sql.NullTime

	err := row.Scan(&doc.ID, &doc.UserID, &doc.FileName, &docType, &status,
		&summary, &redactedURL, &doc.ContentHash, &doc.TransactionCount,
		&doc.TotalDebits, &doc.TotalCredits, &periodStart, &periodEnd, &doc.UploadedAt)
	if err != nil {
		return nil, err
	}

	doc.DocType = model.DocType(docType)
	doc.Status = model.DocumentStatus(status)
	doc.Summary = summary.String
	doc.RedactedURL = redactedURL.String
	if periodStart.Valid {
		t := periodStart.Time
		doc.PeriodStart = &t
	}
	if periodEnd.Valid {
		t := periodEnd.Time
		doc.PeriodEnd = &t
	}
	return &doc, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullableDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
