package audit

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/opera-sds/granule-audit/internal"
	"github.com/opera-sds/granule-audit/internal/cmr"
	"github.com/opera-sds/granule-audit/internal/config"
	"github.com/opera-sds/granule-audit/internal/local"
	"github.com/opera-sds/granule-audit/internal/s3"
	"github.com/opera-sds/granule-audit/internal/schema"
)

func NewCommand() *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "audit",
		Short: "Runs catalog audits against the granule metadata catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newDuplicatesCommand())
	cmd.AddCommand(newAccountabilityCommand())
	cmd.AddCommand(newPresenceCommand())
	return cmd
}

// commonFlags are shared by every audit subcommand. An explicit start/end
// pair overrides days-back.
type commonFlags struct {
	configPath  string
	start       string
	end         string
	daysBack    int
	venue       string
	useRevision bool
	save        bool
	upload      bool
	outputDir   string
	quiet       bool
	verbose     bool
}

func (f *commonFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "Path to config file")
	cmd.MarkFlagRequired("config")
	cmd.Flags().IntVarP(&f.daysBack, "days-back", "d", 7, "Number of days back from today to audit")
	cmd.Flags().StringVarP(&f.start, "start", "s", "", "Start date (YYYY-MM-DD), overrides --days-back")
	cmd.Flags().StringVarP(&f.end, "end", "e", "", "End date (YYYY-MM-DD), overrides --days-back")
	cmd.Flags().StringVarP(&f.venue, "venue", "v", "PROD", "Catalog venue (PROD or UAT)")
	cmd.Flags().BoolVar(&f.useRevision, "use-revision", false, "Range the query over revision date instead of temporal extent")
	cmd.Flags().BoolVar(&f.save, "save", false, "Save reports under the output directory")
	cmd.Flags().BoolVar(&f.upload, "upload", false, "Also upload reports to the configured S3 bucket")
	cmd.Flags().StringVarP(&f.outputDir, "output-dir", "o", "./output", "Directory for saved reports")
	cmd.Flags().BoolVarP(&f.quiet, "quiet", "q", false, "Print only the counts line")
	cmd.Flags().BoolVar(&f.verbose, "verbose", false, "Enable debug logging")
}

// dateRange resolves the audit window. Without explicit bounds the window
// ends at today's UTC midnight and reaches daysBack days into the past,
// matching the nightly cron invocation.
func (f *commonFlags) dateRange() (time.Time, time.Time, error) {
	if f.start != "" || f.end != "" {
		start, err := time.Parse("2006-01-02", f.start)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid start date %q: %w", f.start, err)
		}
		end, err := time.Parse("2006-01-02", f.end)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end date %q: %w", f.end, err)
		}
		if end.Before(start) {
			return time.Time{}, time.Time{}, fmt.Errorf("end date %q precedes start date %q", f.end, f.start)
		}
		return start, end, nil
	}

	end := time.Now().UTC().Truncate(24 * time.Hour)
	start := end.AddDate(0, 0, -f.daysBack)
	return start, end, nil
}

func (f *commonFlags) newLogger() *zap.Logger {
	if f.quiet {
		return zap.NewNop()
	}

	cfg := zap.NewDevelopmentConfig()
	if !f.verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func (f *commonFlags) newCMRClient(cfg *config.Audit, l *zap.Logger) (*cmr.Client, error) {
	endpoint, err := cfg.CMR.EndpointFor(f.venue)
	if err != nil {
		return nil, err
	}

	opts := []cmr.Option{
		cmr.WithLogger(l),
		cmr.WithVenue(f.venue),
		cmr.WithPageSize(cfg.CMR.PageSize),
		cmr.WithRevisionDate(f.useRevision),
	}
	if cfg.CMR.TimeoutSeconds > 0 {
		opts = append(opts, cmr.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.CMR.TimeoutSeconds) * time.Second,
		}))
	}
	if !f.quiet {
		opts = append(opts, cmr.WithProgress(os.Stderr))
	}

	return cmr.New(endpoint, opts...), nil
}

// repositories assembles the report destinations selected by flags. --save
// writes under the local output directory; --upload adds the configured S3
// bucket.
func (f *commonFlags) repositories(cfg *config.Audit, l *zap.Logger) ([]internal.Repository, error) {
	var repos []internal.Repository
	if f.save {
		repos = append(repos, local.New(f.outputDir, local.WithLogger(l)))
	}
	if f.upload {
		if cfg.Reports.S3 == nil {
			return nil, fmt.Errorf("--upload requires a reports s3 section in the config")
		}
		repos = append(repos, s3.New(
			s3.WithBucket(cfg.Reports.S3.Bucket),
			s3.WithRegion(cfg.Reports.S3.Region),
			s3.WithPrefix(cfg.Reports.S3.Prefix),
			s3.WithEndpoint(cfg.Reports.S3.Endpoint),
			s3.WithForcePathStyle(cfg.Reports.S3.ForcePathStyle),
			s3.WithLogger(l),
		))
	}
	return repos, nil
}

func resolveProduct(registry *schema.Registry, name string) (*schema.Product, error) {
	product, err := registry.Resolve(name)
	if err != nil {
		return nil, fmt.Errorf("%w (available: %s)", err, strings.Join(registry.Names(), ", "))
	}
	return product, nil
}
