package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func compressCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "compress",
		Short: "Summarize and compact old conversation sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.memory.CompressOldSessions(cmd.Context(), a.cfg.UserName, days, a.orch)
			if err != nil {
				return err
			}
			fmt.Printf("Compressed %d session(s) older than %d day(s).\n", n, days)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 7, "compress sessions that ended more than this many days ago")
	return cmd
}
