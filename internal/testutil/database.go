// Package testutil provides shared helpers for tests that need a real
// database or canned document fixtures.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/paperflow/internal/model"
	"github.com/Veraticus/paperflow/internal/service"
	"github.com/Veraticus/paperflow/internal/storage"
)

// TestDB wraps an in-memory migrated database for one test.
type TestDB struct {
	Storage service.Storage
	t       *testing.T
}

// SetupTestDB creates a fresh in-memory database, runs migrations, and
// registers cleanup.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return &TestDB{Storage: store, t: t}
}

// MustSaveDocument persists a document with its transactions, failing the
// test on error.
func (db *TestDB) MustSaveDocument(ctx context.Context, doc *model.StoredDocument, txns []model.StoredTransaction) {
	db.t.Helper()
	if err := db.Storage.SaveDocumentWithTransactions(ctx, doc, txns); err != nil {
		db.t.Fatalf("failed to save document: %v", err)
	}
}

// Document returns a valid completed document for userID with a unique
// content hash. Override fields as needed after the call.
func Document(userID string) *model.StoredDocument {
	return &model.StoredDocument{
		ID:          uuid.NewString(),
		UserID:      userID,
		FileName:    "statement.pdf",
		DocType:     model.DocTypeBankStatement,
		Status:      model.StatusCompleted,
		ContentHash: model.ContentHash(uuid.NewString()),
		UploadedAt:  time.Now().UTC(),
	}
}

// Transaction returns a valid debit transaction belonging to doc.
func Transaction(doc *model.StoredDocument, merchant string, amount float64) model.StoredTransaction {
	direction := model.DirectionCredit
	if amount < 0 {
		direction = model.DirectionDebit
	}
	return model.StoredTransaction{
		ID:          uuid.NewString(),
		DocumentID:  doc.ID,
		UserID:      doc.UserID,
		Date:        time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		Merchant:    merchant,
		Description: merchant,
		Amount:      amount,
		Direction:   direction,
		Category:    model.Uncategorized,
		Source:      model.SourceParsed,
	}
}
