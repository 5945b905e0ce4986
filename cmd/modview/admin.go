package main

import (
	"modview/native/internal/api"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var flagKickReason string

var kickCmd = &cobra.Command{
	Use:   "kick <sessionId> <userId>",
	Short: "Kick a viewer out of a live session",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client := api.NewClient(cfg.APIURL, cfg.Credential())
		if err := client.KickViewer(cmd.Context(), args[0], args[1], flagKickReason); err != nil {
			return err
		}
		log.Info().Str("module", "main").Str("session_id", args[0]).Str("user_id", args[1]).Msg("viewer kicked")
		return nil
	},
}

var endCmd = &cobra.Command{
	Use:   "end <sessionId>",
	Short: "End a live session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client := api.NewClient(cfg.APIURL, cfg.Credential())
		if err := client.EndSession(cmd.Context(), args[0]); err != nil {
			return err
		}
		log.Info().Str("module", "main").Str("session_id", args[0]).Msg("session ended")
		return nil
	},
}

func init() {
	kickCmd.Flags().StringVar(&flagKickReason, "reason", api.KickReason, "reason shown to the kicked viewer")
	rootCmd.AddCommand(kickCmd, endCmd)
}
