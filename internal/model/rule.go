package model

import "time"

// RuleSource indicates how a categorization rule was created.
type RuleSource string

const (
	// RuleSourceLearned means an LLM assignment was persisted as a rule.
	RuleSourceLearned RuleSource = "learned"
	// RuleSourceUser means a human correction created the rule.
	RuleSourceUser RuleSource = "user"
)

// CategorizationRule is a durable per-user keyword mapping. MatchCount
// increments each time the rule fires; rules are never deleted automatically.
type CategorizationRule struct {
	LastMatched *time.Time
	ID          int64
	UserID      string
	Keyword     string
	Category    string
	Subcategory string
	Source      RuleSource
	MatchCount  int
}
