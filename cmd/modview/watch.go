package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"modview/native/internal/api"
	"modview/native/internal/domain"
	"modview/native/internal/playback"
	"modview/native/internal/signal"
	"modview/native/internal/viewer"
	"modview/native/internal/webrtc"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	flagOut            string
	flagRequireGesture bool
)

var watchCmd = &cobra.Command{
	Use:   "watch <sessionId>",
	Short: "Attach to a live session and stream its video",
	Long: `Attach to a live session as a privileged viewer.

Video is written as Annex-B H264. Lines typed on stdin are sent as chat.
An empty line counts as a user gesture and starts playback when
--require-gesture is set. Commands:
  /react <emoji>   send a reaction
  /kick <userId>   kick a viewer
  /viewers         list the audience
  /end             end the session`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return watch(cmd.Context(), args[0])
	},
}

func init() {
	watchCmd.Flags().StringVarP(&flagOut, "out", "o", "", "write video to this file instead of stdout")
	watchCmd.Flags().BoolVar(&flagRequireGesture, "require-gesture", false, "hold video output until an empty line is entered")
	rootCmd.AddCommand(watchCmd)
}

func watch(ctx context.Context, sessionID string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	endpoint, err := cfg.SignalURL()
	if err != nil {
		return err
	}

	var out io.Writer = os.Stdout
	if flagOut != "" {
		f, err := os.Create(flagOut)
		if err != nil {
			return fmt.Errorf("open output: %w", err)
		}
		defer f.Close()
		out = f
	}

	conns := signal.NewManager(signal.ClientFactory(signal.Options{
		ReconnectDelay:    cfg.ReconnectDelay,
		ReconnectAttempts: cfg.ReconnectAttempts,
		PingInterval:      cfg.PingInterval,
	}))

	v, err := viewer.New(viewer.Config{
		SessionID:      sessionID,
		Endpoint:       endpoint,
		Credential:     cfg.Credential(),
		Conns:          conns,
		API:            api.NewClient(cfg.APIURL, cfg.Credential()),
		NewPeer:        webrtc.NewPeerFactory(cfg.STUNServers),
		RejoinInterval: cfg.RejoinInterval,
		ReactionTTL:    cfg.ReactionTTL,
		OnStatus: func(s domain.Status) {
			log.Info().Str("module", "main").Str("status", string(s)).Msg("connection status")
		},
	})
	if err != nil {
		return err
	}
	v.SetTarget(playback.NewWriterTarget(out, flagRequireGesture))

	log.Info().Str("module", "main").Str("session_id", sessionID).Str("signal", endpoint).Msg("watching session")

	errc := make(chan error, 1)
	go func() { errc <- v.Run(context.Background()) }()
	go readInput(ctx, v, os.Stdin)

	select {
	case <-ctx.Done():
		log.Info().Str("module", "main").Msg("shutting down")
		v.Leave()
		<-errc
		return nil
	case err := <-errc:
		if errors.Is(err, viewer.ErrSessionEnded) {
			log.Info().Str("module", "main").Msg("session has ended")
			return nil
		}
		return err
	}
}

// readInput turns stdin lines into gestures, chat and moderator commands.
func readInput(ctx context.Context, v *viewer.Viewer, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if err := handleLine(ctx, v, line); err != nil {
			log.Warn().Str("module", "main").Err(err).Msg("command failed")
		}
	}
}

func handleLine(ctx context.Context, v *viewer.Viewer, line string) error {
	if line == "" {
		v.Gesture()
		return nil
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/react":
		if arg == "" {
			return errors.New("usage: /react <emoji>")
		}
		return v.SendReaction(arg)
	case "/kick":
		if arg == "" {
			return errors.New("usage: /kick <userId>")
		}
		return v.Kick(ctx, arg)
	case "/end":
		return v.End(ctx)
	case "/viewers":
		relay := v.Relay()
		log.Info().Str("module", "main").Int("count", relay.ViewerCount()).Msg("viewers")
		for _, vw := range relay.Viewers() {
			log.Info().
				Str("module", "main").
				Str("user_id", vw.UserID).
				Str("username", vw.Username).
				Int("minutes", vw.ConsumedSeconds/60).
				Msg("viewer")
		}
		return nil
	default:
		return v.SendChat(line)
	}
}
