package main

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/lanchat-server/internal/app"
	"github.com/vovakirdan/lanchat-server/internal/config"
	"github.com/vovakirdan/lanchat-server/internal/log"
)

type rootOptions struct {
	configPath string
	logLevel   string
	addr       string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "lanchat-server",
		Short:         "LAN realtime chat server",
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config.yaml (default $LANCHAT_CONFIG_DEFAULT_PATH or ./config.yaml)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level override (trace|debug|info|warn|error|off)")
	root.Flags().StringVar(&opts.addr, "addr", "", "HTTP listen address override")

	root.AddCommand(newServeCmd(opts), newUsersCmd(opts))
	return root
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat server until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.addr, "addr", "", "HTTP listen address override")
	return cmd
}

// loadConfig resolves configuration and builds the process logger.
func loadConfig(opts *rootOptions) (*config.Config, *zerolog.Logger, error) {
	bootLogger := log.New("info")

	cfg, path, err := config.Load(bootLogger, opts.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	cfg.UpdateFrom(config.Config{Addr: opts.addr, LogLevel: opts.logLevel})

	logger := log.New(cfg.LogLevel)
	logger.Debug().Str("config_path", path).Msg("config loaded")
	return &cfg, logger, nil
}

func runServe(cmd *cobra.Command, opts *rootOptions) error {
	cfg, logger, err := loadConfig(opts)
	if err != nil {
		return err
	}

	application, err := app.New(cmd.Context(), cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize application")
		return err
	}

	logger.Info().Str("addr", cfg.Addr).Bool("auth_required", cfg.AuthRequired).Msg("starting lanchat server")
	if err := application.Run(cmd.Context()); err != nil {
		logger.Error().Err(err).Msg("server exited with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
