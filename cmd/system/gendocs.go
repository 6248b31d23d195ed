package system

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"
)

func NewGenDocsCommand() *cobra.Command {
	var (
		outDir string
		format string
	)

	cmd := &cobra.Command{
		Use:   "gendocs",
		Short: "Generate CLI documentation",
		Long: `Generate documentation for every teleconsult command, as Markdown
(default) or man pages. Docs are written to ./docs/cli unless --outdir is set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if outDir == "" {
				outDir = "docs/cli"
			}
			abs, err := filepath.Abs(outDir)
			if err != nil {
				return fmt.Errorf("failed to resolve absolute path for %q: %w", outDir, err)
			}
			if err := os.MkdirAll(abs, 0o755); err != nil {
				return fmt.Errorf("failed to create docs directory %q: %w", abs, err)
			}

			if err := genDocs(cmd.Root(), abs, format); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "CLI docs generated in %s\n", abs)
			return nil
		},
	}

	cmd.Flags().StringVar(&outDir, "outdir", "docs/cli", "Output directory for generated CLI docs")
	cmd.Flags().StringVar(&format, "format", "markdown", "Output format: markdown or man")

	return cmd
}

func genDocs(root *cobra.Command, dir, format string) error {
	root.DisableAutoGenTag = true

	switch format {
	case "markdown", "md":
		if err := doc.GenMarkdownTree(root, dir); err != nil {
			return fmt.Errorf("failed to generate markdown docs: %w", err)
		}
	case "man":
		header := &doc.GenManHeader{Title: "TELECONSULT", Section: "1"}
		if err := doc.GenManTree(root, header, dir); err != nil {
			return fmt.Errorf("failed to generate man pages: %w", err)
		}
	default:
		return fmt.Errorf("unknown docs format %q", format)
	}
	return nil
}
