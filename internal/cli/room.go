package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newJoinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "join",
		Short: "Join the oldest room with a free seat",
		RunE: func(cmd *cobra.Command, args []string) error {
			playerID, err := cfg.RequirePlayer()
			if err != nil {
				return err
			}
			name, err := cfg.RequireName()
			if err != nil {
				return err
			}

			result, err := client.Join(name, playerID)
			if err != nil {
				return err
			}

			out := NewOutput(cfg.Output, cmd.OutOrStdout())
			out.Print(result)
			return nil
		},
	}
}

func newLeaveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "leave",
		Short: "Leave the current room",
		RunE: func(cmd *cobra.Command, args []string) error {
			playerID, err := cfg.RequirePlayer()
			if err != nil {
				return err
			}

			if err := client.Leave(playerID); err != nil {
				return err
			}

			out := NewOutput(cfg.Output, cmd.OutOrStdout())
			out.PrintMessage("Left room")
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the status of the player's current room",
		RunE: func(cmd *cobra.Command, args []string) error {
			playerID, err := cfg.RequirePlayer()
			if err != nil {
				return err
			}

			result, err := client.PlayerRoom(playerID)
			if err != nil {
				if IsNotFound(err) {
					return fmt.Errorf("player %s is not in a room", playerID)
				}
				return err
			}

			out := NewOutput(cfg.Output, cmd.OutOrStdout())
			out.Print(result)
			return nil
		},
	}
}

func newRoomCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "room <room_id>",
		Short: "Show the status of a room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := client.RoomStatus(args[0])
			if err != nil {
				return err
			}

			out := NewOutput(cfg.Output, cmd.OutOrStdout())
			out.Print(result)
			return nil
		},
	}
}

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start [room_id]",
		Short: "Start the game in a full room",
		Long: `Start the game in a full room. Without a room id the player's
current room is started.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var roomID string
			if len(args) == 1 {
				roomID = args[0]
			} else {
				playerID, err := cfg.RequirePlayer()
				if err != nil {
					return err
				}
				status, err := client.PlayerRoom(playerID)
				if err != nil {
					return err
				}
				roomID = status.RoomID
			}

			result, err := client.Start(roomID)
			if err != nil {
				return err
			}

			out := NewOutput(cfg.Output, cmd.OutOrStdout())
			out.Print(result)
			return nil
		},
	}
}
