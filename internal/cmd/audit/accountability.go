package audit

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/opera-sds/granule-audit/internal/audit"
	"github.com/opera-sds/granule-audit/internal/cmr"
	"github.com/opera-sds/granule-audit/internal/config"
	"github.com/opera-sds/granule-audit/internal/report"
	"github.com/opera-sds/granule-audit/internal/schema"
)

func newAccountabilityCommand() *cobra.Command {
	var flags commonFlags
	var productName string

	cmd := &cobra.Command{
		Use:   "accountability",
		Short: "Reconciles input granules against the outputs that reference them",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := flags.newLogger()
			defer logger.Sync()
			l := logger.Named("audit.accountability")

			cfg, err := config.NewAuditFromFile(flags.configPath)
			if err != nil {
				return err
			}

			registry, err := schema.NewRegistry(cfg.Products)
			if err != nil {
				return err
			}

			product, err := resolveProduct(registry, productName)
			if err != nil {
				return err
			}
			if product.Accountability == nil {
				return fmt.Errorf("product %s has no accountability configuration", product.Name)
			}

			inputCCIDs := product.Accountability.InputCCIDs[flags.venue]
			if len(inputCCIDs) == 0 {
				return fmt.Errorf("product %s has no input collections configured for venue %s", product.Name, flags.venue)
			}

			start, end, err := flags.dateRange()
			if err != nil {
				return err
			}

			outputCCID, err := product.CCIDFor(flags.venue)
			if err != nil {
				return err
			}

			client, err := flags.newCMRClient(cfg, l)
			if err != nil {
				return err
			}

			outputs, err := client.Query(cmd.Context(), outputCCID, &start, &end)
			if err != nil {
				return err
			}

			inputSets := make([][]cmr.Granule, 0, len(inputCCIDs))
			for _, ccid := range inputCCIDs {
				inputs, err := client.Query(cmd.Context(), ccid, &start, &end)
				if err != nil {
					return err
				}
				inputSets = append(inputSets, inputs)
			}

			reconciler, err := audit.NewReconciler(product.Accountability, audit.WithLogger(l))
			if err != nil {
				return err
			}

			results, err := reconciler.Reconcile(outputs, inputSets...)
			if err != nil {
				return err
			}

			repos, err := flags.repositories(cfg, l)
			if err != nil {
				return err
			}
			for _, repo := range repos {
				writer := report.New(repo, report.WithLogger(l))
				files, err := writer.SaveAccountability(cmd.Context(), results, product.Name, flags.venue)
				if err != nil {
					return err
				}
				for _, fpath := range files {
					l.Info("report written", zap.String("path", fpath))
				}
			}

			if flags.quiet {
				fmt.Printf("%d,%d,%d\n", results.Expected, results.Actual, results.MissingCount)
			} else {
				printAccountabilitySummary(product.Name, flags.venue, start, end, results)
			}

			if results.MissingCount > 0 {
				return fmt.Errorf("%d expected input granules have no output: %w", results.MissingCount, audit.ErrValidationFailed)
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&productName, "product", "p", "DSWX_HLS", "Product type to reconcile")
	return cmd
}

func printAccountabilitySummary(product, venue string, start, end time.Time, results *audit.AccountabilityReport) {
	fmt.Printf("\nAccountability Summary - %s (%s)\n", product, venue)
	fmt.Printf("Date Range:         %s to %s\n", start.Format("2006-01-02"), end.Format("2006-01-02"))
	fmt.Printf("Expected Inputs:    %d\n", results.Expected)
	fmt.Printf("Accounted For:      %d\n", results.Actual)
	fmt.Printf("Missing:            %d\n", results.MissingCount)
	fmt.Printf("Accountability:     %.2f%%\n", results.Rate())
}
