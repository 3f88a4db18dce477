// Package cli holds the okx-exec commands.
package cli

import (
	"github.com/spf13/cobra"
)

// Version is stamped at build time with -ldflags "-X okx-exec/internal/cli.Version=...".
var Version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "okx-exec",
	Short: "OKX order execution and account reconciliation engine",
	Long: `okx-exec trades one OKX spot or perpetual swap instrument with a bar-driven
strategy. It normalizes and clamps every order, tracks cash and position
locally, reconciles them against the exchange, and journals orders to SQLite.

Credentials come from OKX_API_KEY, OKX_API_SECRET and OKX_PASSPHRASE,
optionally loaded from a .env file.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML config")
	rootCmd.AddCommand(newLiveCmd(), newDownloadCmd(), newVersionCmd())
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println("okx-exec " + Version)
		},
	}
}
