package parse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/paperflow/internal/common"
	"github.com/Veraticus/paperflow/internal/model"
)

const sampleReceipt = `Corner Cafe
123 Main Street
2024-03-10
Latte 4.50
Croissant 3.75
Total: $8.25
Thank you!`

func TestParseReceipt(t *testing.T) {
	result := ParseReceipt(sampleReceipt)

	require.NotNil(t, result.Transaction)
	txn := result.Transaction
	assert.InDelta(t, -8.25, txn.Amount, 0.001)
	assert.Equal(t, model.DirectionDebit, txn.Direction)
	assert.Equal(t, "Corner Cafe", txn.Merchant)
	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), txn.Date)
	assert.Equal(t, model.SourceParsed, txn.Source)
	assert.InDelta(t, 1.0, result.Confidence, 0.001)
}

func TestParseReceiptNoTotal(t *testing.T) {
	result := ParseReceipt("Corner Cafe\nThank you for visiting")

	assert.Nil(t, result.Transaction)
	assert.Zero(t, result.Confidence)
}

func TestParseReceiptUnknownMerchant(t *testing.T) {
	result := ParseReceipt("2024-03-10 Total: $12.00")

	require.NotNil(t, result.Transaction)
	assert.Equal(t, "Unknown Merchant", result.Transaction.Merchant)
}

func TestInvoiceFallbackTagsInferred(t *testing.T) {
	text := `Acme Consulting
Invoice for March services
Date: 2024-03-31
Amount due: $42.17`

	result := InvoiceFallback(text)

	require.NotNil(t, result.Transaction)
	txn := result.Transaction
	assert.Equal(t, model.SourceAIInferred, txn.Source)
	assert.InDelta(t, -42.17, txn.Amount, 0.001)
	assert.Equal(t, "Acme Consulting", txn.Merchant)
}

func TestParseDocumentStatementInvoiceFallback(t *testing.T) {
	// No repeating line pattern, but a detectable total: exactly one
	// synthesized transaction.
	text := `Acme Consulting
Invoice 2024-03-31
Total: $42.17`

	result, err := ParseDocument(text, model.DocTypeBankStatement)

	require.NoError(t, err)
	require.Len(t, result.Transactions, 1)
	assert.True(t, result.Inferred)
	assert.Equal(t, model.SourceAIInferred, result.Transactions[0].Source)
	assert.InDelta(t, -42.17, result.Transactions[0].Amount, 0.001)
}

func TestParseDocumentStatementPreferred(t *testing.T) {
	text := `2024-01-15 STARBUCKS -5.75
2024-01-16 SHELL OIL -42.00`

	result, err := ParseDocument(text, model.DocTypeBankStatement)

	require.NoError(t, err)
	assert.Len(t, result.Transactions, 2)
	assert.False(t, result.Inferred)
}

func TestParseDocumentNothingUsable(t *testing.T) {
	_, err := ParseDocument("nothing resembling money here", model.DocTypeBankStatement)

	assert.ErrorIs(t, err, common.ErrNoTransactions)
}

func TestParseDocumentReceipt(t *testing.T) {
	result, err := ParseDocument(sampleReceipt, model.DocTypeReceipt)

	require.NoError(t, err)
	require.Len(t, result.Transactions, 1)
	assert.False(t, result.Inferred)
	assert.Equal(t, model.SourceParsed, result.Transactions[0].Source)
}
