// Package commands implements the rbrbctl CLI commands.
package commands

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// client is the HTTP client used to reach a demo instance's status
	// endpoint. The demo has no RPC service of its own: it's a library
	// host, not a daemon, so a plain JSON endpoint on the metrics server
	// is all there is to inspect.
	client = &http.Client{Timeout: 3 * time.Second}

	// serverAddr is the demo instance's metrics/status HTTP address.
	serverAddr string

	// outputFormat controls the output format for all commands (table or json).
	outputFormat string
)

// rootCmd is the top-level cobra command for rbrbctl.
var rootCmd = &cobra.Command{
	Use:   "rbrbctl",
	Short: "CLI for inspecting a running rbrb-counter-demo instance",
	Long:  "rbrbctl polls a rbrb-counter-demo process's status endpoint to report its confirmation horizon and counter value.",
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "localhost:9100",
		"rbrb-counter-demo metrics/status address (host:port)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table",
		"output format: table, json")

	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(versionCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
