package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/paperflow/internal/categorize"
	"github.com/Veraticus/paperflow/internal/config"
	"github.com/Veraticus/paperflow/internal/model"
)

func rulesCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage categorization rules",
	}
	cmd.PersistentFlags().StringVarP(&userID, "user", "u", "", "user ID (required)")
	_ = cmd.MarkPersistentFlagRequired("user")

	list := &cobra.Command{
		Use:   "list",
		Short: "List categorization rules, most used first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			store, err := openStorage(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			rules, err := store.GetRulesForUser(ctx, userID)
			if err != nil {
				return fmt.Errorf("failed to list rules: %w", err)
			}
			if len(rules) == 0 {
				fmt.Println("No rules yet. They accumulate as documents are categorized.")
				return nil
			}

			for _, rule := range rules {
				fmt.Printf("%-30s -> %-15s  (%s, used %d times)\n",
					rule.Keyword, rule.Category, rule.Source, rule.MatchCount)
			}
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set <vendor> <category>",
		Short: "Record a category correction for a vendor",
		Long: `Record that transactions from a vendor belong to a category. The mapping is
saved as a durable rule and teaches future categorization runs.

Valid categories: ` + strings.Join(model.Categories(), ", "),
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			store, err := openStorage(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			engine := categorize.NewEngine(store, nil, nil, nil, nil)
			if err := engine.LearnFromCorrection(ctx, userID, args[0], args[1]); err != nil {
				return fmt.Errorf("failed to save correction: %w", err)
			}

			fmt.Printf("Saved: %s -> %s\n", args[0], args[1])
			return nil
		},
	}

	cmd.AddCommand(list)
	cmd.AddCommand(set)
	return cmd
}
