package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dripdrop/musicjobs/internal/model"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show a music job record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newComponents(cmd.Context(), ctx.configValue(), ctx.loggerValue())
			if err != nil {
				return err
			}
			defer c.close()

			job, err := c.store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(model.NewMusicJobResponse(job))
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, jobRows(job), nil))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the record as JSON")
	return cmd
}

func jobRows(job *model.MusicJob) [][]string {
	return [][]string{
		{"ID", job.ID},
		{"User", job.UserID},
		{"Status", string(job.Status())},
		{"Title", job.Title},
		{"Artist", job.Artist},
		{"Album", job.Album},
		{"Grouping", deref(job.Grouping)},
		{"Video URL", deref(job.VideoURL)},
		{"Original", deref(job.OriginalFilename)},
		{"Artwork URL", deref(job.ArtworkURL)},
		{"Download", deref(job.DownloadURL)},
		{"Created", formatTime(&job.CreatedAt)},
		{"Started", formatTime(job.StartedAt)},
		{"Completed", formatTime(job.CompletedAt)},
		{"Deleted", formatTime(job.DeletedAt)},
	}
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
