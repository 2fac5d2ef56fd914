package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/orion-companion/orion/internal/auth"
	"github.com/orion-companion/orion/internal/config"
)

func loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login <provider>",
		Short: "Authenticate a provider via its device flow (openai, gemini)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			broker, err := newBroker()
			if err != nil {
				return err
			}
			if err := broker.Login(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Logged in to %s.\n", args[0])
			return nil
		},
	}
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout <provider>",
		Short: "Remove a provider's stored credentials",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			broker, err := newBroker()
			if err != nil {
				return err
			}
			if err := broker.Logout(args[0]); err != nil {
				return err
			}
			fmt.Printf("Logged out of %s.\n", args[0])
			return nil
		},
	}
}

// newBroker builds the auth broker without the rest of the app wiring, so
// login works before any database or vector store exists.
func newBroker() (*auth.Broker, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, err
	}
	return auth.New(config.ExpandHome(cfg.ProjectDir), cfg.Providers.Local.BaseURL), nil
}
