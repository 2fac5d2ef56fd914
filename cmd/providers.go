package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func providersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "Show availability of every provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			fmt.Println("Providers:")
			for _, s := range a.orch.ProviderStatus(cmd.Context()) {
				if s.Available {
					fmt.Printf("  %-12s OK\n", s.Provider)
				} else {
					fmt.Printf("  %-12s unavailable (%s)\n", s.Provider, s.Reason)
				}
			}

			if creds := a.broker.AvailableProviders(cmd.Context()); len(creds) > 0 {
				fmt.Println("\nCredentials present for:")
				for _, p := range creds {
					fmt.Printf("  %s\n", p)
				}
			}
			return nil
		},
	}
}
