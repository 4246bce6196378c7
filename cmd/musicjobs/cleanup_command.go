package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCleanupCommand(ctx *commandContext) *cobra.Command {
	var queued bool

	cmd := &cobra.Command{
		Use:   "cleanup <job-id>",
		Short: "Delete a job's stored files and mark it deleted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newComponents(cmd.Context(), ctx.configValue(), ctx.loggerValue())
			if err != nil {
				return err
			}
			defer c.close()

			jobID := args[0]
			if queued {
				info, err := c.enqueuer.EnqueueCleanup(cmd.Context(), jobID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleanup queued as %s\n", info.ID)
				return nil
			}

			if err := c.service.Cleanup(cmd.Context(), jobID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %s cleaned up\n", jobID)
			return nil
		},
	}

	cmd.Flags().BoolVar(&queued, "queue", false, "Queue the cleanup instead of running it now")
	return cmd
}
