package cli

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/soyeahso/huddle/internal/config"
	"github.com/soyeahso/huddle/internal/llm"
	"github.com/soyeahso/huddle/internal/store"
	"github.com/soyeahso/huddle/internal/version"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show huddle status and configuration summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n\n", version.Info())

			// Show paths
			fmt.Fprintf(out, "Config:  %s\n", paths.Config)
			fmt.Fprintf(out, "Data:    %s\n", paths.Data)
			fmt.Fprintf(out, "Logs:    %s\n", paths.Logs)
			fmt.Fprintln(out)

			cfg, err := config.Load(paths.Config)
			if err != nil {
				if os.IsNotExist(err) {
					fmt.Fprintln(out, "Config:  not found (using defaults)")
				} else {
					fmt.Fprintf(out, "Config:  error loading: %v\n", err)
				}
				return nil
			}

			auth := "anonymous"
			if cfg.Gateway.Auth.Token != "" || os.Getenv("HUDDLE_GATEWAY_TOKEN") != "" {
				auth = "token"
			}
			fmt.Fprintf(out, "Gateway: port=%d bind=%s auth=%s\n", cfg.Gateway.Port, cfg.Gateway.Bind, auth)

			o := cfg.Orchestrator
			fmt.Fprintf(out, "Turns:   max=%d history=%d supervisor=%d delay=%s\n",
				o.MaxTurns, o.HistoryWindow, o.SupervisorWindow, o.StreamDelay)

			registry := llm.NewRegistryFromConfig(cfg.Models, log)
			configured := slices.Sorted(maps.Keys(cfg.Models.Providers))
			if len(configured) == 0 {
				configured = []string{"(none configured)"}
			}
			fmt.Fprintf(out, "LLM:     %s (supported: %s)\n",
				strings.Join(configured, ", "), strings.Join(registry.List(), ", "))

			fmt.Fprintf(out, "Agents:  %d inline, catalog %s\n", len(cfg.Agents.List), paths.CatalogPath(cfg.Agents))

			if cfg.Relay.IRC != nil {
				irc := cfg.Relay.IRC
				fmt.Fprintf(out, "IRC:     server=%s nick=%s channel=%s tls=%v\n",
					irc.Server, irc.Nick, irc.Channel, irc.UseTLS)
			} else {
				fmt.Fprintln(out, "IRC:     (not configured)")
			}

			if cfg.Store.Driver == "memory" {
				fmt.Fprintln(out, "Store:   memory")
			} else {
				printStoreStatus(cmd, cfg)
			}

			// Validation
			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				fmt.Fprintf(out, "\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(out, "  - %s: %s\n", issue.Path, issue.Message)
				}
			}

			return nil
		},
	}

	return cmd
}

// printStoreStatus reports database health and per-user usage. A missing
// database is not created.
func printStoreStatus(cmd *cobra.Command, cfg config.Config) {
	out := cmd.OutOrStdout()
	dbPath := paths.StorePath(cfg.Store)
	if _, err := os.Stat(dbPath); err != nil {
		fmt.Fprintf(out, "Store:   sqlite %s (not created yet)\n", dbPath)
		return
	}

	db, err := store.Open(dbPath, log)
	if err != nil {
		fmt.Fprintf(out, "Store:   sqlite %s (error: %v)\n", dbPath, err)
		return
	}
	defer db.Close()

	if err := db.Ping(cmd.Context()); err != nil {
		fmt.Fprintf(out, "Store:   sqlite %s (unreachable: %v)\n", dbPath, err)
		return
	}
	fmt.Fprintf(out, "Store:   sqlite %s\n", dbPath)

	totals, err := store.NewUsageStore(db, cfg.Credits.TokenBudget).Totals(cmd.Context())
	if err != nil {
		fmt.Fprintf(out, "Usage:   error: %v\n", err)
		return
	}
	budget := "unlimited"
	if cfg.Credits.TokenBudget > 0 {
		budget = fmt.Sprintf("%d tokens", cfg.Credits.TokenBudget)
	}
	fmt.Fprintf(out, "Usage:   budget %s per user\n", budget)
	for _, t := range totals {
		fmt.Fprintf(out, "  %-20s calls=%d billable=%d coordinator=%d\n", t.UserID, t.Calls, t.Billable, t.Coordinator)
	}
}
