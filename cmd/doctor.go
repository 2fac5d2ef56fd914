package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/orion-companion/orion/internal/auth"
	"github.com/orion-companion/orion/internal/config"
	"github.com/orion-companion/orion/internal/orchestrator"
	"github.com/orion-companion/orion/internal/policy"
	"github.com/orion-companion/orion/internal/store/sqldb"
	"github.com/orion-companion/orion/internal/vector"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor(cmd.Context())
		},
	}
}

func runDoctor(ctx context.Context) {
	fmt.Println("orion doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (not found, using defaults)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Printf("  Policy:   %s", cfg.PolicyPath())
	if _, err := policy.Load(cfg.PolicyPath()); err != nil {
		fmt.Printf(" (FAILED: %s)\n", err)
	} else {
		fmt.Println(" (OK)")
	}

	fmt.Println()
	fmt.Println("  Database:")
	fmt.Printf("    %-10s %s\n", "URL:", cfg.Database.URL)
	if st, err := sqldb.Open(cfg.Database.URL); err != nil {
		fmt.Printf("    %-10s CONNECT FAILED (%s)\n", "Status:", err)
	} else {
		fmt.Printf("    %-10s OK\n", "Status:")
		st.Close()
	}

	fmt.Println()
	fmt.Println("  Vector store:")
	if vec, _, err := vector.New(cfg); err != nil {
		fmt.Printf("    %-10s OPEN FAILED (%s)\n", "Status:", err)
	} else {
		stats := vec.Stats(ctx)
		fmt.Printf("    %-10s %s\n", "Backend:", stats.Backend)
		fmt.Printf("    %-10s %d\n", "Vectors:", stats.TotalVectors)
	}

	fmt.Println()
	fmt.Println("  Channels:")
	checkToken("Telegram", cfg.Channels.Telegram.Token)
	checkToken("Discord", cfg.Channels.Discord.Token)

	fmt.Println()
	fmt.Println("  Providers:")
	broker := auth.New(config.ExpandHome(cfg.ProjectDir), cfg.Providers.Local.BaseURL)
	orch := orchestrator.New(cfg, broker)
	for _, s := range orch.ProviderStatus(ctx) {
		if s.Available {
			fmt.Printf("    %-12s OK\n", s.Provider)
		} else {
			fmt.Printf("    %-12s unavailable\n", s.Provider)
		}
	}
}

func checkToken(name, token string) {
	if token != "" {
		fmt.Printf("    %-12s configured\n", name+":")
	} else {
		fmt.Printf("    %-12s not configured\n", name+":")
	}
}
