package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfg    *Config
	client *Client
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cfg = DefaultConfig()

	rootCmd := &cobra.Command{
		Use:   "mmctl",
		Short: "CLI tool for the room matchmaking API",
		Long: `mmctl is a CLI tool for the room matchmaking server.

It supports joining and leaving rooms, reading room status, starting games,
polling for a full room (match) and following push events over WebSocket
(live) or SSE (events).`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			client = NewClient(cfg.ServerURL, cfg.Timeout)
			return nil
		},
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "Server URL (env: MMCTL_SERVER)")
	rootCmd.PersistentFlags().StringVar(&cfg.PlayerID, "player", cfg.PlayerID, "Player id, e.g. a wallet address (env: MMCTL_PLAYER_ID)")
	rootCmd.PersistentFlags().StringVar(&cfg.Name, "name", cfg.Name, "Display name (env: MMCTL_NAME)")
	rootCmd.PersistentFlags().StringVarP(&cfg.Output, "output", "o", cfg.Output, "Output format: text, json")
	rootCmd.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Verbose output")
	rootCmd.PersistentFlags().DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "HTTP request timeout")

	// Add subcommands
	rootCmd.AddCommand(newJoinCmd())
	rootCmd.AddCommand(newLeaveCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newRoomCmd())
	rootCmd.AddCommand(newStartCmd())
	rootCmd.AddCommand(newMatchCmd())
	rootCmd.AddCommand(newLiveCmd())
	rootCmd.AddCommand(newEventsCmd())
	rootCmd.AddCommand(newHealthCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func errMissing(flag, env string) error {
	return fmt.Errorf("%s is required (env: %s)", flag, env)
}
