// Command desktop is a headless desktop shell for the handoff: it registers the custom
// scheme, holds the single-instance lock and runs the UI side of the sign-in in-process.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "desktop [deep-link]",
	Short: "Headless desktop shell for the OAuth handoff",
	Long: `Runs the desktop side of the sign-in handoff. Launched with an app:// deep link while
another instance is running, the link is relayed to that instance and this process exits.`,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runShell,
}

func init() {
	rootCmd.Flags().String("env-file", ".env", "Environment file to load")
	rootCmd.Flags().String("data-dir", "", "App data directory (defaults to the user config dir)")
	rootCmd.Flags().String("app-path", ".", "Directory the renderer path is resolved against")
	rootCmd.Flags().String("login", "", "Start a sign-in with this provider once the UI is up")
	rootCmd.Flags().String("ui-addr", "127.0.0.1:0", "Loopback address serving the UI bundle")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
