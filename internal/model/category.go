package model

// Uncategorized is the sentinel assigned when no categorization strategy
// matched. It is never persisted as null.
const Uncategorized = "Uncategorized"

// categories is the closed category set. Categorizer output and analyzer
// input must agree on it exactly.
var categories = []string{
	"Groceries",
	"Restaurants",
	"Entertainment",
	"Transport",
	"Utilities",
	"Shopping",
	"Healthcare",
	"Education",
	"Subscriptions",
	"Fees",
	"Income",
	"Other",
}

// Categories returns the closed category set, excluding the sentinel.
func Categories() []string {
	out := make([]string, len(categories))
	copy(out, categories)
	return out
}

// ValidCategory reports whether name is in the closed set or the sentinel.
func ValidCategory(name string) bool {
	if name == Uncategorized {
		return true
	}
	for _, c := range categories {
		if c == name {
			return true
		}
	}
	return false
}
