package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show daemon health and engine availability",
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := ctx.baseURL()
			if err != nil {
				return err
			}
			health, err := newClient(base).health()
			if err != nil {
				return err
			}

			rows := [][]string{
				{"Status", health.Status},
				{"homr available", strconv.FormatBool(health.HomrAvailable)},
				{"Max upload (MB)", strconv.Itoa(health.MaxUploadMB)},
				{"Active jobs", strconv.Itoa(health.ActiveJobs)},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Field", "Value"},
				rows,
				[]columnAlignment{alignLeft, alignRight},
			))
			return nil
		},
	}
}
