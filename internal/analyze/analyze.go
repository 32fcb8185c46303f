// Package analyze derives per-document aggregates and a natural-language
// summary from categorized transactions.
package analyze

import (
	"sort"

	"github.com/Veraticus/paperflow/internal/model"
)

const topVendorLimit = 10

// Compute aggregates categorized transactions. All sums use absolute
// amounts; debits and credits are tracked separately and never netted.
func Compute(txns []model.CategorizedTransaction) model.DocumentAnalysis {
	analysis := model.DocumentAnalysis{TotalTransactions: len(txns)}
	if len(txns) == 0 {
		return analysis
	}

	type bucket struct {
		count int
		total float64
	}
	byCategory := make(map[string]*bucket)
	byVendor := make(map[string]*bucket)

	for i := range txns {
		txn := &txns[i]
		amount := txn.AbsAmount()

		if txn.Direction == model.DirectionDebit || txn.Amount < 0 {
			analysis.TotalDebits += amount
		} else {
			analysis.TotalCredits += amount
		}

		category := txn.Category
		if category == "" {
			category = model.Uncategorized
		}
		cb := byCategory[category]
		if cb == nil {
			cb = &bucket{}
			byCategory[category] = cb
		}
		cb.count++
		cb.total += amount

		vendor := txn.Merchant
		if vendor == "" {
			vendor = "Unknown"
		}
		vb := byVendor[vendor]
		if vb == nil {
			vb = &bucket{}
			byVendor[vendor] = vb
		}
		vb.count++
		vb.total += amount

		if !txn.Date.IsZero() {
			date := txn.Date
			if analysis.Period.StartDate == nil || date.Before(*analysis.Period.StartDate) {
				analysis.Period.StartDate = &date
			}
			if analysis.Period.EndDate == nil || date.After(*analysis.Period.EndDate) {
				analysis.Period.EndDate = &date
			}
		}
	}

	for category, b := range byCategory {
		analysis.ByCategory = append(analysis.ByCategory, model.CategoryTotal{
			Category:    category,
			Count:       b.count,
			TotalAmount: b.total,
		})
	}
	sort.Slice(analysis.ByCategory, func(i, j int) bool {
		a, b := analysis.ByCategory[i], analysis.ByCategory[j]
		if a.TotalAmount != b.TotalAmount {
			return a.TotalAmount > b.TotalAmount
		}
		return a.Category < b.Category
	})

	for vendor, b := range byVendor {
		analysis.TopVendors = append(analysis.TopVendors, model.VendorTotal{
			Vendor:      vendor,
			Count:       b.count,
			TotalAmount: b.total,
		})
	}
	sort.Slice(analysis.TopVendors, func(i, j int) bool {
		a, b := analysis.TopVendors[i], analysis.TopVendors[j]
		if a.TotalAmount != b.TotalAmount {
			return a.TotalAmount > b.TotalAmount
		}
		return a.Vendor < b.Vendor
	})
	if len(analysis.TopVendors) > topVendorLimit {
		analysis.TopVendors = analysis.TopVendors[:topVendorLimit]
	}

	return analysis
}
