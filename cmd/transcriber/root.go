package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/or7nge/sheet-music-transcriber/internal/config"
)

type commandContext struct {
	serverFlag *string
	configFlag *string
}

// baseURL resolves the daemon address: an explicit --server wins, otherwise
// the configured api_bind is used.
func (c *commandContext) baseURL() (string, error) {
	if server := strings.TrimSpace(*c.serverFlag); server != "" {
		return strings.TrimRight(server, "/"), nil
	}

	cfg, _, _, err := config.Load(*c.configFlag)
	if err != nil {
		return "", fmt.Errorf("load config: %w", err)
	}
	bind := cfg.Paths.APIBind
	if strings.HasPrefix(bind, ":") {
		bind = "127.0.0.1" + bind
	}
	return "http://" + bind, nil
}

func newRootCommand() *cobra.Command {
	var serverFlag string
	var configFlag string

	ctx := &commandContext{serverFlag: &serverFlag, configFlag: &configFlag}

	rootCmd := &cobra.Command{
		Use:           "transcriber",
		Short:         "Sheet music transcription service CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&serverFlag, "server", "s", "", "Daemon base URL (default from config)")
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newHealthCommand(ctx))
	rootCmd.AddCommand(newSubmitCommand(ctx))
	rootCmd.AddCommand(newShowCommand(ctx))
	rootCmd.AddCommand(newConfigCommand())

	return rootCmd
}
