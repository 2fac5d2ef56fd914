package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func ingestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Index documents into the knowledge base",
		Long:  "Split and index documents for retrieval. PDF, text, and Markdown are supported.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			for _, path := range args {
				ids, err := a.rag.IngestFile(cmd.Context(), path, a.cfg.UserName)
				if err != nil {
					return fmt.Errorf("ingest %s: %w", path, err)
				}
				fmt.Printf("%s: %d document(s) indexed\n", path, len(ids))
			}
			return nil
		},
	}
}
