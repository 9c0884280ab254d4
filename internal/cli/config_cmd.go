package cli

import (
	"fmt"

	"github.com/soyeahso/huddle/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}

	cmd.AddCommand(newConfigPathCmd())
	cmd.AddCommand(newConfigValidateCmd())
	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), paths.Config)
		},
	}
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the config file for errors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			issues := config.Validate(&cfg)
			if len(issues) == 0 {
				fmt.Fprintf(out, "%s: ok\n", paths.Config)
				return nil
			}
			for _, issue := range issues {
				fmt.Fprintf(out, "  - %s\n", issue)
			}
			return fmt.Errorf("%d validation issue(s)", len(issues))
		},
	}
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective config with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(redact(cfg))
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

const masked = "********"

// redact masks credentials in a copy of cfg.
func redact(cfg config.Config) config.Config {
	if cfg.Gateway.Auth.Token != "" {
		cfg.Gateway.Auth.Token = masked
	}
	if cfg.Relay.IRC != nil && cfg.Relay.IRC.Password != "" {
		irc := *cfg.Relay.IRC
		irc.Password = masked
		cfg.Relay.IRC = &irc
	}
	if len(cfg.Models.Providers) > 0 {
		providers := make(map[string]config.ModelProviderEntry, len(cfg.Models.Providers))
		for name, p := range cfg.Models.Providers {
			if p.APIKey != "" {
				p.APIKey = masked
			}
			providers[name] = p
		}
		cfg.Models.Providers = providers
	}
	if len(cfg.Agents.List) > 0 {
		agents := append(cfg.Agents.List[:0:0], cfg.Agents.List...)
		for i := range agents {
			if agents[i].Model.APIKey != "" {
				agents[i].Model.APIKey = masked
			}
		}
		cfg.Agents.List = agents
	}
	if cfg.Orchestrator.Coordinator.APIKey != "" {
		cfg.Orchestrator.Coordinator.APIKey = masked
	}
	return cfg
}
