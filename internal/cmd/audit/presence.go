package audit

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/opera-sds/granule-audit/internal/audit"
	"github.com/opera-sds/granule-audit/internal/config"
	"github.com/opera-sds/granule-audit/internal/es"
	"github.com/opera-sds/granule-audit/internal/presence"
	"github.com/opera-sds/granule-audit/internal/report"
	"github.com/opera-sds/granule-audit/internal/s3"
	"github.com/opera-sds/granule-audit/internal/schema"
)

func newPresenceCommand() *cobra.Command {
	var flags commonFlags
	var idFile string
	var exactKeys bool

	cmd := &cobra.Command{
		Use:   "presence PRODUCT",
		Short: "Cross-checks catalog granules against object storage and the search index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := flags.newLogger()
			defer logger.Sync()
			l := logger.Named("audit.presence")

			cfg, err := config.NewAuditFromFile(flags.configPath)
			if err != nil {
				return err
			}
			if cfg.Presence == nil {
				return fmt.Errorf("no presence section in the config")
			}

			registry, err := schema.NewRegistry(cfg.Products)
			if err != nil {
				return err
			}

			product, err := resolveProduct(registry, args[0])
			if err != nil {
				return err
			}

			var ids []string
			if idFile != "" {
				ids, err = readIDs(idFile)
			} else {
				ids, err = queryIDs(cmd, &flags, cfg, product, l)
			}
			if err != nil {
				return err
			}

			if len(ids) == 0 {
				fmt.Println("No granules to check")
				return nil
			}

			opts := []presence.Option{presence.WithLogger(l)}
			if exactKeys {
				opts = append(opts, presence.WithExactKeys())
			}
			if cfg.Presence.S3 != nil {
				opts = append(opts, presence.WithStorage(s3.New(
					s3.WithBucket(cfg.Presence.S3.Bucket),
					s3.WithRegion(cfg.Presence.S3.Region),
					s3.WithPrefix(cfg.Presence.S3.Prefix),
					s3.WithEndpoint(cfg.Presence.S3.Endpoint),
					s3.WithForcePathStyle(cfg.Presence.S3.ForcePathStyle),
					s3.WithLogger(l),
				)))
			}
			if len(cfg.Presence.Addresses) > 0 {
				index, err := es.New(cfg.Presence.Addresses, es.WithLogger(l))
				if err != nil {
					return err
				}
				opts = append(opts, presence.WithIndex(index, cfg.Presence.Index, cfg.Presence.IDField))
			}

			checker, err := presence.New(opts...)
			if err != nil {
				return err
			}

			results, err := checker.Check(cmd.Context(), ids)
			if err != nil {
				return err
			}

			repos, err := flags.repositories(cfg, l)
			if err != nil {
				return err
			}
			for _, repo := range repos {
				writer := report.New(repo, report.WithLogger(l))
				files, err := writer.SavePresence(cmd.Context(), results, product.Name, flags.venue)
				if err != nil {
					return err
				}
				for _, fpath := range files {
					l.Info("report written", zap.String("path", fpath))
				}
			}

			missing := len(results.MissingS3) + len(results.MissingIndex)
			if flags.quiet {
				fmt.Printf("%d,%d,%d,%d\n", results.Total, len(results.MissingS3), len(results.MissingIndex), len(results.MissingBoth))
			} else {
				fmt.Printf("\nPresence Summary - %s (%s)\n", product.Name, flags.venue)
				fmt.Printf("Total Granules:     %d\n", results.Total)
				fmt.Printf("Missing from S3:    %d\n", len(results.MissingS3))
				fmt.Printf("Missing from Index: %d\n", len(results.MissingIndex))
				fmt.Printf("Missing from Both:  %d\n", len(results.MissingBoth))
			}

			if missing > 0 {
				return fmt.Errorf("%d granules missing from downstream catalogs: %w", missing, audit.ErrValidationFailed)
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&idFile, "file", "f", "", "File of granule identifiers to check, one per line (defaults to a catalog query)")
	cmd.Flags().BoolVar(&exactKeys, "exact-keys", false, "Treat identifiers as exact object keys instead of product key prefixes")
	return cmd
}

// readIDs loads granule identifiers from a file, one per line. Blank lines
// and #-comments are skipped.
func readIDs(fpath string) ([]string, error) {
	f, err := os.Open(fpath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, line)
	}
	return ids, scanner.Err()
}

func queryIDs(cmd *cobra.Command, flags *commonFlags, cfg *config.Audit, product *schema.Product, l *zap.Logger) ([]string, error) {
	start, end, err := flags.dateRange()
	if err != nil {
		return nil, err
	}

	ccid, err := product.CCIDFor(flags.venue)
	if err != nil {
		return nil, err
	}

	client, err := flags.newCMRClient(cfg, l)
	if err != nil {
		return nil, err
	}

	granules, err := client.Query(cmd.Context(), ccid, &start, &end)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(granules))
	for _, g := range granules {
		ids = append(ids, g.UR)
	}
	return ids, nil
}
