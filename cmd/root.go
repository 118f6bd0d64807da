package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the callbackd application
var rootCmd = &cobra.Command{
	Use:   "callbackd",
	Short: "Brokers OAuth redirect callbacks between browsers and headless consumers",
	Long: `callbackd terminates OAuth 2.0 authorization redirects on behalf of
services that have no browser-reachable endpoint of their own.

The identity provider redirects the user's browser to /callback, where the
outcome is stored under its state token and the user sees a terminal page.
The service that started the flow retrieves the authorization code exactly
once via GET /api/callback/{state} and performs the token exchange itself;
callbackd never touches provider credentials or tokens.`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "callbackd version %s\n" .Version}}`)

	// If no subcommand is provided, run the serve command by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newWaitCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
}
