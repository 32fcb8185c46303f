package analyze

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/paperflow/internal/model"
)

func categorized(merchant, category string, amount float64, day int) model.CategorizedTransaction {
	direction := model.DirectionCredit
	if amount < 0 {
		direction = model.DirectionDebit
	}
	return model.CategorizedTransaction{
		Transaction: model.Transaction{
			Date:        time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC),
			Merchant:    merchant,
			Description: merchant,
			Amount:      amount,
			Direction:   direction,
			Source:      model.SourceParsed,
		},
		Category:   category,
		Confidence: 1.0,
	}
}

func TestComputeSeparatesDebitsAndCredits(t *testing.T) {
	analysis := Compute([]model.CategorizedTransaction{
		categorized("STARBUCKS", "Restaurants", -5.75, 10),
		categorized("SHELL OIL", "Transport", -42.00, 12),
		categorized("EMPLOYER", "Income", 2500.00, 15),
	})

	assert.Equal(t, 3, analysis.TotalTransactions)
	assert.InDelta(t, 47.75, analysis.TotalDebits, 0.001)
	assert.InDelta(t, 2500.00, analysis.TotalCredits, 0.001)
}

func TestComputeCategoryTotalsUseAbsoluteAmounts(t *testing.T) {
	analysis := Compute([]model.CategorizedTransaction{
		categorized("STARBUCKS", "Restaurants", -5.75, 10),
		categorized("CORNER CAFE", "Restaurants", -4.25, 11),
	})

	require.Len(t, analysis.ByCategory, 1)
	assert.Equal(t, "Restaurants", analysis.ByCategory[0].Category)
	assert.Equal(t, 2, analysis.ByCategory[0].Count)
	assert.InDelta(t, 10.00, analysis.ByCategory[0].TotalAmount, 0.001)
}

func TestComputeCategoriesSortedByTotal(t *testing.T) {
	analysis := Compute([]model.CategorizedTransaction{
		categorized("STARBUCKS", "Restaurants", -5.75, 10),
		categorized("SHELL OIL", "Transport", -142.00, 12),
	})

	require.Len(t, analysis.ByCategory, 2)
	assert.Equal(t, "Transport", analysis.ByCategory[0].Category)
	assert.Equal(t, "Restaurants", analysis.ByCategory[1].Category)
}

func TestComputeTopVendorsCappedAtTen(t *testing.T) {
	var txns []model.CategorizedTransaction
	for i := 0; i < 15; i++ {
		txns = append(txns, categorized(fmt.Sprintf("VENDOR %02d", i), "Shopping", -float64(i+1), 10))
	}

	analysis := Compute(txns)

	assert.Len(t, analysis.TopVendors, 10)
	// Highest total first.
	assert.Equal(t, "VENDOR 14", analysis.TopVendors[0].Vendor)
}

func TestComputePeriod(t *testing.T) {
	analysis := Compute([]model.CategorizedTransaction{
		categorized("A", "Shopping", -1, 20),
		categorized("B", "Shopping", -1, 5),
		categorized("C", "Shopping", -1, 12),
	})

	require.NotNil(t, analysis.Period.StartDate)
	require.NotNil(t, analysis.Period.EndDate)
	assert.Equal(t, 5, analysis.Period.StartDate.Day())
	assert.Equal(t, 20, analysis.Period.EndDate.Day())
}

func TestComputeEmpty(t *testing.T) {
	analysis := Compute(nil)

	assert.Equal(t, 0, analysis.TotalTransactions)
	assert.Empty(t, analysis.ByCategory)
	assert.Empty(t, analysis.TopVendors)
	assert.Nil(t, analysis.Period.StartDate)
}

func TestComputeUncategorizedAndUnknownDefaults(t *testing.T) {
	txn := categorized("", "", -10, 10)

	analysis := Compute([]model.CategorizedTransaction{txn})

	require.Len(t, analysis.ByCategory, 1)
	assert.Equal(t, model.Uncategorized, analysis.ByCategory[0].Category)
	require.Len(t, analysis.TopVendors, 1)
	assert.Equal(t, "Unknown", analysis.TopVendors[0].Vendor)
}
