package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Veraticus/paperflow/internal/common"
	"github.com/Veraticus/paperflow/internal/model"
)

// GetRulesForUser returns a user's categorization rules, most used first.
func (s *SQLiteStorage) GetRulesForUser(ctx context.Context, userID string) ([]model.CategorizationRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, keyword, category, subcategory, source, match_count, last_matched
		 FROM categorization_rules
		 WHERE user_id = ?
		 ORDER BY match_count DESC, keyword`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []model.CategorizationRule
	for rows.Next() {
		var rule model.CategorizationRule
		var subcategory sql.NullString
		var source string
		var lastMatched sql.NullTime

		if err := rows.Scan(&rule.ID, &rule.UserID, &rule.Keyword, &rule.Category,
			&subcategory, &source, &rule.MatchCount, &lastMatched); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}

		rule.Subcategory = subcategory.String
		rule.Source = model.RuleSource(source)
		if lastMatched.Valid {
			t := lastMatched.Time
			rule.LastMatched = &t
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rules: %w", err)
	}
	return rules, nil
}

// SaveRule upserts a rule on its (user, keyword) identity. An existing
// rule's category is updated in place; its match count is preserved. The
// rule's ID is populated on return.
func (s *SQLiteStorage) SaveRule(ctx context.Context, rule *model.CategorizationRule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRule(rule); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO categorization_rules (user_id, keyword, category, subcategory, source)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, keyword) DO UPDATE SET
			category = excluded.category,
			subcategory = excluded.subcategory,
			source = excluded.source`,
		rule.UserID, rule.Keyword, rule.Category, rule.Subcategory, string(rule.Source))
	if err != nil {
		return fmt.Errorf("failed to save rule: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM categorization_rules WHERE user_id = ? AND keyword = ?`,
		rule.UserID, rule.Keyword).Scan(&rule.ID)
	if err != nil {
		return fmt.Errorf("failed to read back rule ID: %w", err)
	}
	return nil
}

// IncrementRuleMatchCount bumps a rule's usage counter and match time.
func (s *SQLiteStorage) IncrementRuleMatchCount(ctx context.Context, ruleID int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE categorization_rules
		 SET match_count = match_count + 1, last_matched = CURRENT_TIMESTAMP
		 WHERE id = ?`, ruleID)
	if err != nil {
		return fmt.Errorf("failed to increment match count: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: rule %d", common.ErrNotFound, ruleID)
	}
	return nil
}
