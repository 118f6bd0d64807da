// Package cmd implements the command-line interface for callbackd.
//
// This package provides the following commands:
//   - serve: Start the OAuth callback server
//   - wait: Block until a callback arrives and print it as JSON
//   - version: Display version information
//   - generate-docs: Generate markdown documentation for the CLI
//
// The serve command is the default command when no subcommand is specified.
package cmd
