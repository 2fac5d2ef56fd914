package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/orion-companion/orion/internal/intel"
	"github.com/orion-companion/orion/internal/store"
)

// analysisHistoryLimit bounds how many recent messages feed the analyzer;
// the 30-day window inside the analyzer does the real filtering.
const analysisHistoryLimit = 1000

func insightsCmd() *cobra.Command {
	var windowDays int
	cmd := &cobra.Command{
		Use:   "insights",
		Short: "Analyze conversation patterns and suggest proactive actions",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			history, err := a.memory.GetHistory(cmd.Context(), a.cfg.UserName, analysisHistoryLimit)
			if err != nil {
				return err
			}
			msgs := make([]*store.Message, len(history))
			for i := range history {
				msgs[i] = &history[i]
			}

			in := intel.New(a.cfg.ProjectPath("data"), a.cfg.UserName)
			patterns := in.AnalyzeHistory(msgs, windowDays)
			summary := in.UserSummary()

			fmt.Printf("Analyzed %d message(s) from the last %d day(s).\n\n", patterns.MessagesAnalyzed, windowDays)
			fmt.Printf("Preferred time:    %s\n", summary.PreferredTime)
			fmt.Printf("Top topics:        %s\n", orDash(strings.Join(summary.TopTopics, ", ")))
			fmt.Printf("Common tasks:      %s\n", orDash(strings.Join(summary.CommonTasks, ", ")))
			fmt.Printf("Preferred engine:  %s\n", summary.PreferredEngine)
			fmt.Printf("Interaction style: %s\n", summary.InteractionStyle)

			suggestions := in.SuggestActions("", time.Now().Hour())
			if len(suggestions) > 0 {
				fmt.Println("\nSuggestions:")
				for _, s := range suggestions {
					fmt.Printf("  %-20s %s (confidence %.2f)\n", s.Action, s.Description, s.Confidence)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&windowDays, "days", 30, "analysis window in days")
	return cmd
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
