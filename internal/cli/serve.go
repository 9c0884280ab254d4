package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/soyeahso/huddle/internal/gateway"
	"github.com/soyeahso/huddle/internal/relay"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP/WebSocket gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Gateway.Port = port
			}
			if bind != "" {
				cfg.Gateway.Bind = bind
			}

			rt, err := openRuntime(cfg, log)
			if err != nil {
				return err
			}
			defer rt.Close()

			// Block until SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt.watchCatalog(ctx)

			if cfg.Relay.IRC != nil {
				irc := relay.NewIRC(*cfg.Relay.IRC, log)
				irc.Register(rt.hooks)
				go func() {
					if err := irc.Start(ctx); err != nil {
						log.Error().Err(err).Msg("IRC relay stopped")
					}
				}()
				defer irc.Stop()
			}

			opts := []gateway.ServerOption{
				gateway.WithHooks(rt.hooks),
				gateway.WithTranscripts(rt.transcripts),
			}
			srv := gateway.New(cfg.Gateway, rt.orch, log, opts...)
			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override gateway port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (loopback, lan, custom)")

	return cmd
}
