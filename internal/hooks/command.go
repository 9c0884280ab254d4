package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/soyeahso/huddle/internal/config"
)

const defaultCommandTimeout = 10 * time.Second

// CommandHandler runs a shell command for each event. The payload is
// written to the command's stdin as JSON and the event name is exported as
// HUDDLE_EVENT.
func CommandHandler(entry config.HookEntry) Handler {
	timeout := defaultCommandTimeout
	if entry.Timeout > 0 {
		timeout = time.Duration(entry.Timeout) * time.Millisecond
	}

	return func(ctx context.Context, p Payload) error {
		body, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encoding payload: %w", err)
		}

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		cmd := exec.CommandContext(ctx, "sh", "-c", entry.Command)
		cmd.Stdin = bytes.NewReader(body)
		cmd.Env = append(os.Environ(), "HUDDLE_EVENT="+p.Event)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		cmd.WaitDelay = time.Second

		if err := cmd.Run(); err != nil {
			if msg := strings.TrimSpace(stderr.String()); msg != "" {
				return fmt.Errorf("hook %q: %w: %s", entry.Command, err, msg)
			}
			return fmt.Errorf("hook %q: %w", entry.Command, err)
		}
		return nil
	}
}

// RegisterCommands registers every configured command hook.
func RegisterCommands(m *Manager, cfg config.HooksConfig) int {
	n := 0
	for event, entries := range map[string][]config.HookEntry{
		EventConversationStart: cfg.ConversationStart,
		EventTurnCommitted:     cfg.TurnCommitted,
		EventConversationEnd:   cfg.ConversationEnd,
	} {
		for i, e := range entries {
			m.On(event, fmt.Sprintf("command:%s#%d", event, i), CommandHandler(e))
			n++
		}
	}
	return n
}
