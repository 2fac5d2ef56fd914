package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/orion-companion/orion/internal/config"
	"github.com/orion-companion/orion/internal/store/sqldb"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return err
			}

			st, err := sqldb.Open(cfg.Database.URL)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer st.Close()

			if err := st.Migrate(); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Println("Schema up to date.")
			return nil
		},
	}
}
