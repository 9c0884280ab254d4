package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/soyeahso/huddle/internal/catalog"
	"github.com/soyeahso/huddle/internal/domain"
	"github.com/spf13/cobra"
)

func newAgentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Manage agents",
	}

	cmd.AddCommand(newAgentListCmd())
	cmd.AddCommand(newAgentImportCmd())
	cmd.AddCommand(newAgentRemoveCmd())
	return cmd
}

func newAgentListCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List agents from the catalog and the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			rt, err := openRuntime(cfg, log)
			if err != nil {
				return err
			}
			defer rt.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Catalog: %s\n", rt.catalog.Path())
			printAgents(out, "catalog", visibleTo(rt.catalog.List(), userID))

			if rt.agentStore != nil {
				stored, err := rt.agentStore.List(cmd.Context(), userID)
				if err != nil {
					return fmt.Errorf("listing stored agents: %w", err)
				}
				printAgents(out, "stored", stored)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "only agents visible to this user (default all)")
	return cmd
}

func visibleTo(agents []domain.AgentDescriptor, userID string) []domain.AgentDescriptor {
	if userID == "" {
		return agents
	}
	var out []domain.AgentDescriptor
	for _, a := range agents {
		if a.VisibleTo(userID) {
			out = append(out, a)
		}
	}
	return out
}

func printAgents(w io.Writer, source string, agents []domain.AgentDescriptor) {
	for _, a := range agents {
		model := a.Model.Provider
		if a.Model.Name != "" {
			model += "/" + a.Model.Name
		}
		if model == "" {
			model = "(coordinator default)"
		}
		owner := a.OwnerID
		if owner == "" {
			owner = "shared"
		}
		fmt.Fprintf(w, "  %-16s %-20s %-8s owner=%s model=%s\n", a.ID, a.DisplayName(), source, owner, model)
	}
}

func newAgentImportCmd() *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import agents from a YAML catalog file into the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := catalog.LoadFile(args[0])
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			rt, err := openRuntime(cfg, log)
			if err != nil {
				return err
			}
			defer rt.Close()
			if rt.agentStore == nil {
				return fmt.Errorf("agent import requires the sqlite store")
			}

			n, err := importAgents(cmd.Context(), rt.agentStore, f.Agents, owner)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d agent(s)\n", n)
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "assign imported agents to this user (default keeps the file's owner)")
	return cmd
}

type agentSaver interface {
	Save(ctx context.Context, a domain.AgentDescriptor) error
}

func importAgents(ctx context.Context, s agentSaver, agents []domain.AgentDescriptor, owner string) (int, error) {
	n := 0
	for _, a := range agents {
		if owner != "" {
			a.OwnerID = owner
		}
		if err := s.Save(ctx, a); err != nil {
			return n, fmt.Errorf("saving agent %q: %w", a.ID, err)
		}
		log.Debug().Str("agent", a.ID).Str("owner", a.OwnerID).Msg("agent imported")
		n++
	}
	return n, nil
}

func newAgentRemoveCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "remove <agent-id>...",
		Short: "Remove stored agents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			rt, err := openRuntime(cfg, log)
			if err != nil {
				return err
			}
			defer rt.Close()
			if rt.agentStore == nil {
				return fmt.Errorf("agent remove requires the sqlite store")
			}

			var missing []string
			for _, id := range args {
				if err := rt.agentStore.Delete(cmd.Context(), id, userID); err != nil {
					missing = append(missing, id)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", id)
			}
			if len(missing) > 0 {
				return fmt.Errorf("agents not removed: %s", strings.Join(missing, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "owner of the agents")
	return cmd
}
