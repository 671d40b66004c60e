package audit

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/opera-sds/granule-audit/internal/audit"
	"github.com/opera-sds/granule-audit/internal/config"
	"github.com/opera-sds/granule-audit/internal/report"
	"github.com/opera-sds/granule-audit/internal/schema"
)

func newDuplicatesCommand() *cobra.Command {
	var flags commonFlags

	cmd := &cobra.Command{
		Use:   "duplicates PRODUCT",
		Short: "Detects duplicate granules for a product over a date range",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := flags.newLogger()
			defer logger.Sync()
			l := logger.Named("audit.duplicates")

			cfg, err := config.NewAuditFromFile(flags.configPath)
			if err != nil {
				return err
			}

			registry, err := schema.NewRegistry(cfg.Products)
			if err != nil {
				return err
			}

			product, err := resolveProduct(registry, args[0])
			if err != nil {
				return err
			}

			start, end, err := flags.dateRange()
			if err != nil {
				return err
			}

			ccid, err := product.CCIDFor(flags.venue)
			if err != nil {
				return err
			}

			client, err := flags.newCMRClient(cfg, l)
			if err != nil {
				return err
			}

			granules, err := client.Query(cmd.Context(), ccid, &start, &end)
			if err != nil {
				return err
			}

			if len(granules) == 0 {
				if flags.quiet {
					fmt.Println("0,0,0")
				} else {
					fmt.Println("No granules found in the date range")
				}
				return nil
			}

			results, err := audit.DetectDuplicates(granules, product, l)
			if err != nil {
				return err
			}

			repos, err := flags.repositories(cfg, l)
			if err != nil {
				return err
			}
			for _, repo := range repos {
				writer := report.New(repo, report.WithLogger(l))
				files, err := writer.SaveDuplicates(cmd.Context(), results, product.Name, flags.venue)
				if err != nil {
					return err
				}
				for _, fpath := range files {
					l.Info("report written", zap.String("path", fpath))
				}
			}

			if flags.quiet {
				fmt.Printf("%d,%d,%d\n", results.Total, results.Unique, results.Duplicates)
			} else {
				printDuplicateSummary(product.Name, flags.venue, start, end, results)
			}

			if results.Duplicates > 0 {
				return fmt.Errorf("%d duplicate granules found: %w", results.Duplicates, audit.ErrValidationFailed)
			}
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}

func printDuplicateSummary(product, venue string, start, end time.Time, results *audit.DuplicateReport) {
	fmt.Printf("\nDuplicate Detection Summary - %s (%s)\n", product, venue)
	fmt.Printf("Date Range:         %s to %s\n", start.Format("2006-01-02"), end.Format("2006-01-02"))
	fmt.Printf("Total Granules:     %d\n", results.Total)
	fmt.Printf("Unique Granules:    %d\n", results.Unique)
	fmt.Printf("Duplicates:         %d\n", results.Duplicates)
	fmt.Printf("Duplicate Rate:     %.2f%%\n", results.Rate())
}
