package model

import "time"

// CategoryTotal aggregates transactions in one category using absolute amounts.
type CategoryTotal struct {
	Category    string
	Count       int
	TotalAmount float64
}

// VendorTotal aggregates transactions for one merchant using absolute amounts.
type VendorTotal struct {
	Vendor      string
	Count       int
	TotalAmount float64
}

// Period is the min/max transaction date range of a document.
type Period struct {
	StartDate *time.Time
	EndDate   *time.Time
}

// DocumentAnalysis is derived per run and never persisted independently.
// TotalDebits and TotalCredits are separate non-negative sums of absolute
// values; they are never netted against each other.
type DocumentAnalysis struct {
	Period            Period
	ByCategory        []CategoryTotal
	TopVendors        []VendorTotal
	TotalTransactions int
	TotalDebits       float64
	TotalCredits      float64
}
