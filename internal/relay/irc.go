// Package relay mirrors committed conversation turns to an IRC channel.
package relay

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/lrstanley/girc"
	"github.com/soyeahso/huddle/internal/config"
	"github.com/soyeahso/huddle/internal/hooks"
	"github.com/soyeahso/huddle/internal/logging"
)

const (
	// maxLineBytes keeps a PRIVMSG under the 512 byte IRC limit once the
	// command, target and framing are added.
	maxLineBytes = 400
	queueSize    = 256
)

var errNotConnected = errors.New("irc: not connected")

// Status is the relay's runtime state.
type Status struct {
	Connected bool   `json:"connected"`
	Running   bool   `json:"running"`
	Channel   string `json:"channel"`
	Queued    int    `json:"queued"`
	Dropped   uint64 `json:"dropped"`
	LastError string `json:"lastError,omitempty"`
}

// IRC posts conversation entries to one IRC channel. Hook handlers only
// enqueue, so a slow or absent server never stalls a conversation.
type IRC struct {
	cfg config.IRCConfig
	log *logging.Logger

	queue   chan string
	dropped atomic.Uint64
	deliver func(target, line string) error

	mu      sync.RWMutex
	client  *girc.Client
	running bool
	lastErr string
}

// NewIRC creates a relay from configuration. Call Start to connect.
func NewIRC(cfg config.IRCConfig, log *logging.Logger) *IRC {
	r := &IRC{
		cfg:   cfg,
		log:   log.Sub("relay.irc"),
		queue: make(chan string, queueSize),
	}
	r.deliver = r.send
	return r
}

// Register subscribes the relay to conversation hooks.
func (r *IRC) Register(m *hooks.Manager) {
	m.On(hooks.EventTurnCommitted, "relay.irc", r.Handle)
	m.On(hooks.EventConversationEnd, "relay.irc", r.Handle)
}

// Handle turns a hook payload into channel lines and enqueues them.
func (r *IRC) Handle(_ context.Context, p hooks.Payload) error {
	var lines []string
	switch p.Event {
	case hooks.EventTurnCommitted:
		lines = formatTurn(str(p.Data, "speaker"), str(p.Data, "message"))
	case hooks.EventConversationEnd:
		lines = []string{fmt.Sprintf("*** conversation %s ended: %s after %v turns",
			str(p.Data, "conversationId"), str(p.Data, "reason"), p.Data["turns"])}
	}
	for _, l := range lines {
		r.enqueue(l)
	}
	return nil
}

func (r *IRC) enqueue(line string) {
	select {
	case r.queue <- line:
	default:
		r.dropped.Add(1)
		r.log.Debug().Msg("relay queue full, dropping line")
	}
}

// Status returns the current runtime status.
func (r *IRC) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Status{
		Connected: r.client != nil && r.client.IsConnected(),
		Running:   r.running,
		Channel:   r.cfg.Channel,
		Queued:    len(r.queue),
		Dropped:   r.dropped.Load(),
		LastError: r.lastErr,
	}
}

// Start connects to the server and relays queued lines until ctx is done
// or the connection ends.
func (r *IRC) Start(ctx context.Context) error {
	port := r.cfg.Port
	if port == 0 {
		if r.cfg.UseTLS {
			port = 6697
		} else {
			port = 6667
		}
	}

	gircCfg := girc.Config{
		Server:  r.cfg.Server,
		Port:    port,
		Nick:    r.cfg.Nick,
		User:    r.cfg.Nick,
		Name:    "huddle relay",
		SSL:     r.cfg.UseTLS,
		Version: "huddle",
	}
	if r.cfg.UseTLS {
		gircCfg.TLSConfig = &tls.Config{ServerName: r.cfg.Server}
	}
	if r.cfg.SASL && r.cfg.Password != "" {
		gircCfg.SASL = &girc.SASLPlain{User: r.cfg.Nick, Pass: r.cfg.Password}
	} else if r.cfg.Password != "" {
		gircCfg.ServerPass = r.cfg.Password
	}

	client := girc.New(gircCfg)
	client.Handlers.Add(girc.CONNECTED, r.onConnected)
	client.Handlers.Add(girc.DISCONNECTED, r.onDisconnected)

	r.mu.Lock()
	r.client = client
	r.running = true
	r.lastErr = ""
	r.mu.Unlock()

	r.log.Info().
		Str("server", r.cfg.Server).
		Int("port", port).
		Str("nick", r.cfg.Nick).
		Str("channel", r.cfg.Channel).
		Bool("tls", r.cfg.UseTLS).
		Msg("connecting to IRC")

	pumpCtx, stopPump := context.WithCancel(ctx)
	defer stopPump()
	go r.pump(pumpCtx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- client.Connect()
	}()

	select {
	case err := <-errCh:
		r.mu.Lock()
		r.running = false
		if err != nil {
			r.lastErr = err.Error()
		}
		r.mu.Unlock()
		if err != nil {
			return fmt.Errorf("irc connect: %w", err)
		}
		return nil
	case <-ctx.Done():
		client.Close()
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		return ctx.Err()
	}
}

// Stop quits the server connection.
func (r *IRC) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client != nil && r.client.IsConnected() {
		r.log.Info().Msg("disconnecting from IRC")
		r.client.Quit("huddle shutting down")
	}
	r.running = false
}

// pump drains the queue into the channel until ctx is done.
func (r *IRC) pump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case line := <-r.queue:
			if err := r.deliver(r.cfg.Channel, line); err != nil {
				r.dropped.Add(1)
				r.log.Debug().Err(err).Msg("relay line dropped")
			}
		}
	}
}

func (r *IRC) send(target, line string) error {
	r.mu.RLock()
	client := r.client
	r.mu.RUnlock()
	if client == nil || !client.IsConnected() {
		return errNotConnected
	}
	client.Cmd.Message(target, line)
	return nil
}

func (r *IRC) onConnected(c *girc.Client, _ girc.Event) {
	r.log.Info().Str("nick", c.GetNick()).Str("channel", r.cfg.Channel).Msg("connected to IRC, joining")
	c.Cmd.Join(r.cfg.Channel)
}

func (r *IRC) onDisconnected(_ *girc.Client, _ girc.Event) {
	r.log.Warn().Msg("disconnected from IRC")
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
}

// formatTurn renders one entry as "<Speaker> text" lines. Each source line
// becomes at least one IRC line; long lines are split on rune boundaries.
func formatTurn(speaker, message string) []string {
	if speaker == "" {
		speaker = "?"
	}
	prefix := "<" + speaker + "> "
	var out []string
	for _, line := range strings.Split(message, "\n") {
		line = strings.TrimRight(line, "\r ")
		if line == "" {
			continue
		}
		for _, chunk := range splitBytes(line, maxLineBytes-len(prefix)) {
			out = append(out, prefix+chunk)
		}
	}
	return out
}

// splitBytes cuts s into pieces of at most n bytes without splitting a
// UTF-8 sequence.
func splitBytes(s string, n int) []string {
	if n <= 0 {
		n = maxLineBytes
	}
	var out []string
	for len(s) > n {
		cut := n
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		if cut == 0 {
			cut = n
		}
		out = append(out, s[:cut])
		s = s[cut:]
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}

func str(data map[string]any, key string) string {
	v, _ := data[key].(string)
	return v
}
