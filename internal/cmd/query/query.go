package query

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/opera-sds/granule-audit/internal/es"
)

func NewCommand() *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "query",
		Short: "Executes a raw query against the GRQ search index",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, _ := zap.NewDevelopment()
			defer logger.Sync()
			l := logger.Named("query")

			l.Info("granule-audit query",
				zap.String("host", viper.GetString("host")),
				zap.String("index", viper.GetString("index")),
				zap.String("action", viper.GetString("action")),
			)

			client, err := es.New([]string{viper.GetString("host")}, es.WithLogger(l))
			if err != nil {
				return err
			}

			f, err := os.Open(viper.GetString("query_file"))
			if err != nil {
				return err
			}
			defer f.Close()

			action := viper.GetString("action")
			count, err := client.Execute(cmd.Context(), viper.GetString("index"), f, action)
			if err != nil {
				return err
			}

			switch action {
			case "search":
				fmt.Printf("Found documents: %d\n", count)
			default:
				fmt.Printf("Affected documents: %d\n", count)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringP("host", "", "http://localhost:9200", "Search index host")
	cmd.PersistentFlags().StringP("index", "i", "", "Index to query")
	cmd.PersistentFlags().StringP("query-file", "f", "", "File holding the query body")
	cmd.PersistentFlags().StringP("action", "a", "search", "Action to perform (search or delete)")
	cmd.MarkPersistentFlagRequired("index")
	cmd.MarkPersistentFlagRequired("query-file")
	viper.BindPFlag("host", cmd.PersistentFlags().Lookup("host"))
	viper.BindPFlag("index", cmd.PersistentFlags().Lookup("index"))
	viper.BindPFlag("query_file", cmd.PersistentFlags().Lookup("query-file"))
	viper.BindPFlag("action", cmd.PersistentFlags().Lookup("action"))
	viper.AutomaticEnv()
	viper.SetEnvPrefix("GRANULE_AUDIT")
	return cmd
}
