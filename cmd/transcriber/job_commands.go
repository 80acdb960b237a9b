package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/or7nge/sheet-music-transcriber/internal/api"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "submit <file>",
		Short: "Upload a sheet-music image or PDF for transcription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := ctx.baseURL()
			if err != nil {
				return err
			}
			cli := newClient(base)

			job, err := cli.submit(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Accepted job %s\n", job.ID)

			if !wait {
				printJob(cmd, job)
				return nil
			}

			for !terminal(job.Status) {
				time.Sleep(time.Second)
				job, err = cli.job(job.ID)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%-16s %5.1f%%  %s\n", job.Stage, job.Progress*100, job.Message)
			}
			printJob(cmd, job)
			if job.Status == "error" {
				return fmt.Errorf("transcription failed: %s", job.Error)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Poll until the job reaches a terminal state")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var showLog bool
	var showABC bool

	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show the current state of a transcription job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := ctx.baseURL()
			if err != nil {
				return err
			}
			job, err := newClient(base).job(args[0])
			if err != nil {
				return err
			}

			printJob(cmd, job)
			out := cmd.OutOrStdout()
			if showLog && len(job.Log) > 0 {
				fmt.Fprintln(out)
				for _, line := range job.Log {
					fmt.Fprintln(out, line)
				}
			}
			if showABC && job.ABCText != "" {
				fmt.Fprintln(out)
				fmt.Fprintln(out, job.ABCText)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showLog, "log", false, "Print the job's trace log")
	cmd.Flags().BoolVar(&showABC, "abc", false, "Print the generated ABC text")
	return cmd
}

func terminal(status string) bool {
	return status == "complete" || status == "error"
}

func printJob(cmd *cobra.Command, job api.Job) {
	rows := [][]string{
		{"ID", job.ID},
		{"File", job.Filename},
		{"Status", job.Status},
		{"Stage", job.Stage},
		{"Progress", fmt.Sprintf("%.1f%%", job.Progress*100)},
		{"Message", job.Message},
	}
	if job.Error != "" {
		rows = append(rows, []string{"Error", job.Error})
	}
	if len(job.Downloads) > 0 {
		links := make([]string, 0, len(job.Downloads))
		for kind, url := range job.Downloads {
			links = append(links, kind+": "+url)
		}
		rows = append(rows, []string{"Downloads", strings.Join(links, "\n")})
	}
	if job.PreviewURL != "" {
		rows = append(rows, []string{"Preview", job.PreviewURL})
	}

	fmt.Fprintln(cmd.OutOrStdout(), renderTable(
		[]string{"Field", "Value"},
		rows,
		[]columnAlignment{alignLeft, alignLeft},
	))
}
