// File: cmd/once.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/varjak-dev/potokend/internal/config"
	"github.com/varjak-dev/potokend/internal/observability"
)

// newOnceCmd creates the `once` command: a single extraction attempt
// that prints the credential to stdout and exits.
func newOnceCmd() *cobra.Command {
	onceCmd := &cobra.Command{
		Use:   "once",
		Short: "Performs a single extraction attempt and prints the credential",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return viper.BindPFlag("browser.headless", cmd.Flags().Lookup("headless"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return fmt.Errorf("failed to resolve config with flag overrides: %w", err)
			}

			d, err := buildDaemon(cfg, logger)
			if err != nil {
				return err
			}
			defer d.close(logger)

			cred, ok := d.updater.RunOnce(ctx)
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("no credential captured; see the log for details")
			}

			fmt.Fprintln(cmd.OutOrStdout(), cred.JSON())
			return nil
		},
	}

	onceCmd.Flags().Bool("headless", true, "run the browser headless")

	return onceCmd
}
