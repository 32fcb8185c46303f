package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/Veraticus/paperflow/internal/common"
	"github.com/Veraticus/paperflow/internal/config"
	"github.com/Veraticus/paperflow/internal/model"
	"github.com/Veraticus/paperflow/internal/pipeline"
)

func processCmd() *cobra.Command {
	var (
		userID   string
		docType  string
		fileURL  string
		noRedact bool
		dryRun   bool
	)

	cmd := &cobra.Command{
		Use:   "process [file]",
		Short: "Process a financial document",
		Long: `Process a bank statement, receipt, or OFX export. Pass a local file path,
or --url to download the document instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && fileURL == "" {
				return fmt.Errorf("provide a file path or --url")
			}

			dt := model.DocType(docType)
			switch dt {
			case model.DocTypeBankStatement, model.DocTypeReceipt:
			default:
				return fmt.Errorf("invalid --type %q (bank_statement or receipt)", docType)
			}

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

			processor, err := buildProcessor(cfg, store, dryRun)
			if err != nil {
				return err
			}

			req := pipeline.Request{
				UserID:  userID,
				DocType: dt,
				FileURL: fileURL,
				Redact:  !noRedact,
			}
			if len(args) == 1 {
				data, readErr := os.ReadFile(args[0])
				if readErr != nil {
					return fmt.Errorf("failed to read %s: %w", args[0], readErr)
				}
				req.FileBytes = data
				req.FileName = args[0]
			}

			bar := newProcessBar()
			req.OnProgress = func(percent int, message string) {
				bar.Describe(fmt.Sprintf("[cyan]%s[reset]", message))
				if err := bar.Set(percent); err != nil {
					slog.Warn("Failed to update progress bar", "error", err)
				}
			}

			result, err := processor.Process(ctx, req)
			if err != nil {
				_ = bar.Close()
				return fmt.Errorf("%s", common.UserMessage(err))
			}
			_ = bar.Finish()

			printResult(result)
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "user ID owning the document (required)")
	cmd.Flags().StringVarP(&docType, "type", "t", string(model.DocTypeBankStatement), "document type (bank_statement, receipt)")
	cmd.Flags().StringVar(&fileURL, "url", "", "download the document from this URL")
	cmd.Flags().BoolVar(&noRedact, "no-redact", false, "skip PII redaction")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "run the full pipeline without persisting anything")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func newProcessBar() *progressbar.ProgressBar {
	return progressbar.NewOptions(100,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan]processing document[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(os.Stderr)
		}),
	)
}

func printResult(result *pipeline.Result) {
	if result.IsDuplicate {
		fmt.Printf("Already processed: this document matches %s\n\n", result.ExistingDocumentID)
	} else if result.Simulated {
		fmt.Println("Dry run: nothing was persisted.")
		fmt.Println()
	}

	if result.Document != nil {
		fmt.Printf("Document:     %s\n", result.Document.ID)
		fmt.Printf("Transactions: %d\n", result.Document.TransactionCount)
		fmt.Printf("Debits:       $%.2f\n", result.Document.TotalDebits)
		fmt.Printf("Credits:      $%.2f\n", result.Document.TotalCredits)
	}
	fmt.Printf("\n%s\n", result.Summary)

	if len(result.Warnings) > 0 {
		fmt.Println("\nWarnings:")
		for _, w := range result.Warnings {
			fmt.Printf("  - %s\n", w)
		}
	}
}
