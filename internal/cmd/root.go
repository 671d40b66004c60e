package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/opera-sds/granule-audit/internal/audit"
	auditcmd "github.com/opera-sds/granule-audit/internal/cmd/audit"
	"github.com/opera-sds/granule-audit/internal/cmd/query"
)

func NewRootCommand() *cobra.Command {
	var cmd = &cobra.Command{
		Use:           "granule-audit",
		Short:         "Audits the granule catalog for duplicates, missing outputs, and unregistered products",
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	cmd.AddCommand(auditcmd.NewCommand())
	cmd.AddCommand(query.NewCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). Audit findings exit 2 so cron wrappers can
// tell bad data apart from tool failure.
func Execute() {
	cmd := NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if errors.Is(err, audit.ErrValidationFailed) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
