package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/soyeahso/huddle/internal/conversation"
	"github.com/soyeahso/huddle/internal/domain"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var (
		agentIDs       []string
		turns          int
		attach         []string
		conversationID string
		userID         string
		stream         bool
		asJSON         bool
	)

	cmd := &cobra.Command{
		Use:   "run [message]",
		Short: "Run a conversation between agents and print the transcript",
		Long: "Run starts a new conversation, or continues one with --conversation, " +
			"and prints every turn. With --stream turns are printed as they are committed.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			attachments, err := readAttachments(attach)
			if err != nil {
				return err
			}

			rt, err := openRuntime(cfg, log)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			req := conversation.Request{
				ConversationID: conversationID,
				AgentIDs:       agentIDs,
				InitialMessage: strings.Join(args, " "),
				MaxTurns:       turns,
				UserID:         userID,
				Attachments:    attachments,
			}

			out := cmd.OutOrStdout()
			var done conversation.Done
			if stream {
				done = printStream(out, cmd.ErrOrStderr(), rt.orch.Stream(ctx, req), asJSON)
			} else {
				res := rt.orch.Start(ctx, req)
				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					if err := enc.Encode(res); err != nil {
						return err
					}
				} else {
					printTranscript(out, res.Messages)
				}
				done = conversation.Done{ConversationID: res.ConversationID, Reason: res.Reason, Turns: res.Turns}
			}

			if !asJSON {
				printDone(out, done)
			}
			return exitReason(done.Reason)
		},
	}

	cmd.Flags().StringSliceVarP(&agentIDs, "agents", "a", nil, "agent ids taking part (at least two)")
	cmd.Flags().IntVarP(&turns, "turns", "n", 0, "maximum agent turns (default from config)")
	cmd.Flags().StringSliceVar(&attach, "attach", nil, "text files to attach to the opening message")
	cmd.Flags().StringVarP(&conversationID, "conversation", "c", "", "continue an existing conversation")
	cmd.Flags().StringVarP(&userID, "user", "u", "local", "user id the conversation belongs to")
	cmd.Flags().BoolVar(&stream, "stream", false, "print turns as they happen")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of text")
	_ = cmd.MarkFlagRequired("agents")

	return cmd
}

// readAttachments loads text files for the opening message.
func readAttachments(files []string) ([]domain.Attachment, error) {
	var out []domain.Attachment
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("reading attachment: %w", err)
		}
		mt := mime.TypeByExtension(filepath.Ext(f))
		if mt == "" {
			mt = "text/plain"
		}
		out = append(out, domain.Attachment{
			Filename: filepath.Base(f),
			MimeType: mt,
			Content:  string(data),
		})
	}
	return out, nil
}

func printTranscript(w io.Writer, msgs []domain.ConversationMessage) {
	for _, m := range msgs {
		printMessage(w, m)
	}
}

func printMessage(w io.Writer, m domain.ConversationMessage) {
	fmt.Fprintf(w, "%s: %s\n\n", m.Speaker, m.Message)
}

func printDone(w io.Writer, d conversation.Done) {
	fmt.Fprintf(w, "-- %s after %d turn(s), conversation %s\n", d.Reason, d.Turns, d.ConversationID)
}

// printStream prints events until the stream closes and returns the final
// done payload. Typing indicators go to errw so stdout stays a transcript.
func printStream(w, errw io.Writer, events <-chan conversation.Event, asJSON bool) conversation.Done {
	var done conversation.Done
	enc := json.NewEncoder(w)
	for ev := range events {
		if ev.Type == conversation.EventDone && ev.Done != nil {
			done = *ev.Done
		}
		if asJSON {
			_ = enc.Encode(ev)
			continue
		}
		switch ev.Type {
		case conversation.EventTyping:
			fmt.Fprintf(errw, "%s is typing...\n", ev.Message.Speaker)
		case conversation.EventMessage, conversation.EventError:
			printMessage(w, *ev.Message)
		}
	}
	return done
}

// exitReason turns end reasons that mean the request never ran into an error.
func exitReason(r conversation.EndReason) error {
	switch r {
	case conversation.EndInvalid, conversation.EndBusy, conversation.EndFailed:
		return fmt.Errorf("conversation %s", r)
	}
	return nil
}
