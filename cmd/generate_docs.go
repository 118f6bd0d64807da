package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"
)

func newGenerateDocsCmd() *cobra.Command {
	var outputDir string

	cmd := &cobra.Command{
		Use:   "generate-docs",
		Short: "Generate CLI reference documentation",
		Long: `Generate markdown reference documentation for all callbackd commands.
The documentation is derived from the command definitions themselves, so it
stays in sync with the actual flags and defaults.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerateDocs(outputDir)
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "docs/cli", "Directory to write the markdown files to")

	return cmd
}

func runGenerateDocs(outputDir string) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := doc.GenMarkdownTree(rootCmd, outputDir); err != nil {
		return fmt.Errorf("failed to generate documentation: %w", err)
	}

	fmt.Printf("Documentation written to %s\n", outputDir)
	return nil
}
