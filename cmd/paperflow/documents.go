package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/paperflow/internal/config"
)

func documentsCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "documents",
		Short: "List and inspect processed documents",
	}
	cmd.PersistentFlags().StringVarP(&userID, "user", "u", "", "user ID (required)")
	_ = cmd.MarkPersistentFlagRequired("user")

	list := &cobra.Command{
		Use:   "list",
		Short: "List processed documents, newest first",
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

			docs, err := store.ListDocuments(ctx, userID)
			if err != nil {
				return fmt.Errorf("failed to list documents: %w", err)
			}
			if len(docs) == 0 {
				fmt.Println("No documents yet.")
				return nil
			}

			for _, doc := range docs {
				fmt.Printf("%s  %-14s  %-20s  %3d txns  $%.2f out / $%.2f in\n",
					doc.UploadedAt.Format("2006-01-02"), doc.DocType, doc.FileName,
					doc.TransactionCount, doc.TotalDebits, doc.TotalCredits)
				fmt.Printf("    id: %s\n", doc.ID)
			}
			return nil
		},
	}

	show := &cobra.Command{
		Use:   "show <document-id>",
		Short: "Show a document's summary and transactions",
		Args:  cobra.ExactArgs(1),
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

			doc, err := store.GetDocumentByID(ctx, args[0], userID)
			if err != nil {
				return fmt.Errorf("failed to load document: %w", err)
			}
			txns, err := store.GetTransactionsByDocumentID(ctx, doc.ID, userID)
			if err != nil {
				return fmt.Errorf("failed to load transactions: %w", err)
			}

			fmt.Printf("%s (%s)\n", doc.FileName, doc.DocType)
			fmt.Printf("Uploaded: %s\n\n", doc.UploadedAt.Format("2006-01-02 15:04"))
			fmt.Println(doc.Summary)
			fmt.Println()

			for _, txn := range txns {
				date := ""
				if !txn.Date.IsZero() {
					date = txn.Date.Format("2006-01-02")
				}
				fmt.Printf("%-10s  %-30s  %10.2f  %s\n", date, txn.Merchant, txn.Amount, txn.Category)
			}
			return nil
		},
	}

	cmd.AddCommand(list)
	cmd.AddCommand(show)
	return cmd
}
