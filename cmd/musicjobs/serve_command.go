package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dripdrop/musicjobs/internal/broadcast"
	"github.com/dripdrop/musicjobs/internal/middleware"
	"github.com/dripdrop/musicjobs/internal/server"
	ws "github.com/dripdrop/musicjobs/internal/websocket"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var withoutWorker bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the status stream and an embedded worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			logger := ctx.loggerValue()

			runCtx, stop := signalContext(cmd.Context())
			defer stop()

			c, err := newComponents(runCtx, cfg, logger)
			if err != nil {
				return err
			}
			defer c.close()

			hub := ws.NewHub(logger)
			app := server.New(server.Deps{
				Config:      cfg,
				Music:       c.service,
				Hub:         hub,
				RateLimiter: middleware.NewRateLimiter(c.redis),
				Health:      c.health,
				Logger:      logger,
			})

			g, gctx := errgroup.WithContext(runCtx)
			g.Go(func() error {
				hub.Run(gctx)
				return nil
			})
			g.Go(func() error {
				return hub.Listen(gctx, c.redis, broadcast.ChannelJobUpdate)
			})

			if !withoutWorker {
				srv, mux := c.newWorkerServer()
				if err := srv.Start(mux); err != nil {
					return err
				}
				defer srv.Shutdown()
			}

			g.Go(func() error {
				<-gctx.Done()
				logger.Info("shutting down server")
				return app.ShutdownWithTimeout(10 * time.Second)
			})

			addr := ":" + cfg.Server.Port
			logger.Info("server starting", "addr", addr)
			if err := app.Listen(addr); err != nil {
				stop()
				_ = g.Wait()
				return err
			}
			stop()
			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&withoutWorker, "no-worker", false, "Serve the API without processing queued jobs")
	return cmd
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
