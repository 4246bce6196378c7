package main

import (
	"github.com/spf13/cobra"
)

func newWorkerCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Process queued music jobs without serving HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx, stop := signalContext(cmd.Context())
			defer stop()

			c, err := newComponents(runCtx, ctx.configValue(), ctx.loggerValue())
			if err != nil {
				return err
			}
			defer c.close()

			srv, mux := c.newWorkerServer()
			if err := srv.Start(mux); err != nil {
				return err
			}
			ctx.loggerValue().Info("worker started", "queue", ctx.configValue().Queue.Name)

			<-runCtx.Done()
			srv.Shutdown()
			return nil
		},
	}
}
