package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Alturino/fitclub/internal/config"
	"github.com/Alturino/fitclub/internal/constants"
	"github.com/Alturino/fitclub/internal/log"
)

func Start() {
	bootstrap := zerolog.New(os.Stdout).With().
		Timestamp().
		Str(log.KeyAppName, constants.APP_FITCLUB).
		Str(log.KeyTag, "main Start").
		Logger()

	bootstrap.Info().Msg("adding listener for SIGINT and SIGTERM")
	c, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	bootstrap.Info().Msg("added listener for SIGINT and SIGTERM")

	c = bootstrap.WithContext(c)

	configName := constants.APP_FITCLUB
	rootCmd := &cobra.Command{Use: constants.APP_FITCLUB}
	rootCmd.PersistentFlags().StringVar(&configName, "config", configName, "config file name under ./env")
	commands := []*cobra.Command{
		{
			Use:   "serve",
			Short: "Run the storefront gateway",
			Run: func(cmd *cobra.Command, args []string) {
				c, cfg := initApp(cmd.Context(), configName, constants.APP_GATEWAY)
				runGateway(c, cfg)
			},
		},
		{
			Use:   "migrate",
			Short: "Apply checkout ledger migrations and exit",
			Run: func(cmd *cobra.Command, args []string) {
				c, cfg := initApp(cmd.Context(), configName, constants.APP_MIGRATION)
				runMigration(c, cfg)
			},
		},
	}
	rootCmd.AddCommand(commands...)
	if err := rootCmd.ExecuteContext(c); err != nil {
		bootstrap.Fatal().Err(err).Msgf("error when executing command=%s", err.Error())
	}
}

// initApp loads the config and swaps the bootstrap logger for the configured one.
func initApp(c context.Context, configName string, appName string) (context.Context, *config.Config) {
	cfg := config.InitConfig(c, configName)
	logger := log.InitLogger(cfg.Application.LogPath, cfg.Application.Env).
		With().
		Str(log.KeyAppName, appName).
		Logger()
	return logger.WithContext(c), cfg
}
