package main

import (
	"context"
	"errors"
	"os"
	ossignal "os/signal"
	"syscall"

	"modview/native/internal/config"
	"modview/native/internal/logging"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	flagAPIURL   string
	flagToken    string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:   "modview",
	Short: "Watch and moderate a live session from the terminal",
	Long: `modview attaches to a live session as a privileged viewer over WebRTC.

The raw H264 stream is written to stdout (or --out). Pipe it to ffplay or
ffmpeg for playback or recording. Logs go to stderr.

Environment Variables:
  MODVIEW_TOKEN    API token (required, "Bearer " is added if missing)
  MODVIEW_API_URL  API base URL, the signaling endpoint is derived from it
  LOG_LEVEL        debug, info, warn or error

Examples:
  # Live playback
  modview watch S1 | ffplay -f h264 -

  # Record to a file
  modview watch S1 --out session.h264

  # Moderate
  modview kick S1 user-42
  modview end S1`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagAPIURL, "api", "", "API base URL (overrides MODVIEW_API_URL)")
	rootCmd.PersistentFlags().StringVar(&flagToken, "token", "", "API token (overrides MODVIEW_TOKEN)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
}

// loadConfig reads configuration with flag overrides and sets up logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.Options{
		APIURL:   flagAPIURL,
		Token:    flagToken,
		LogLevel: flagLogLevel,
	})
	if err != nil {
		return nil, err
	}
	logging.Init(cfg.LogLevel)
	return cfg, nil
}

func main() {
	logging.Init(os.Getenv("LOG_LEVEL"))

	ctx, stop := ossignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Str("module", "main").Err(err).Msg("exit")
		stop()
		os.Exit(1)
	}
}
