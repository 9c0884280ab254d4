package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/soyeahso/huddle/internal/conversation"
	"github.com/spf13/cobra"
)

func newConversationCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:     "conversation",
		Aliases: []string{"conv"},
		Short:   "Browse stored conversations",
	}
	cmd.PersistentFlags().StringVarP(&userID, "user", "u", "local", "user id owning the conversations")

	cmd.AddCommand(newConversationListCmd(&userID))
	cmd.AddCommand(newConversationShowCmd(&userID))
	cmd.AddCommand(newConversationSearchCmd(&userID))
	cmd.AddCommand(newConversationDeleteCmd(&userID))
	return cmd
}

// openHistory opens the runtime and requires the sqlite store.
func openHistory() (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	rt, err := openRuntime(cfg, log)
	if err != nil {
		return nil, err
	}
	if rt.history == nil {
		rt.Close()
		return nil, fmt.Errorf("conversation history requires the sqlite store")
	}
	return rt, nil
}

func newConversationListCmd(userID *string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openHistory()
			if err != nil {
				return err
			}
			defer rt.Close()

			convs, err := rt.history.List(cmd.Context(), *userID, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(convs) == 0 {
				fmt.Fprintln(out, "No conversations.")
				return nil
			}
			for _, c := range convs {
				fmt.Fprintf(out, "  %-36s %4d entries  updated %s\n",
					c.ID, c.Messages, c.UpdatedAt.Local().Format(time.DateTime))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum conversations to list")
	return cmd
}

func newConversationShowCmd(userID *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show <conversation-id>",
		Short: "Print a stored transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openHistory()
			if err != nil {
				return err
			}
			defer rt.Close()

			msgs, err := rt.history.GetExisting(cmd.Context(), args[0], *userID)
			if err != nil {
				return err
			}
			if len(msgs) == 0 {
				return fmt.Errorf("conversation not found: %s", args[0])
			}
			printTranscript(cmd.OutOrStdout(), conversation.Display(msgs))
			return nil
		},
	}
}

func newConversationSearchCmd(userID *string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search across stored transcripts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openHistory()
			if err != nil {
				return err
			}
			defer rt.Close()

			hits, err := rt.history.Search(cmd.Context(), *userID, strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(hits) == 0 {
				fmt.Fprintln(out, "No matches.")
				return nil
			}
			for _, h := range hits {
				fmt.Fprintf(out, "%s  %s: %s\n", h.ConversationID, h.Message.Speaker, snippet(h.Message.Content, 120))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum matches")
	return cmd
}

func newConversationDeleteCmd(userID *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <conversation-id>",
		Short: "Delete a stored conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openHistory()
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.history.Delete(cmd.Context(), args[0], *userID); err != nil {
				return fmt.Errorf("deleting %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}

// snippet flattens s to one line of at most n runes.
func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
