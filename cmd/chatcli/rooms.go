package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(roomsCmd, historyCmd, sendCmd)
}

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List rooms, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dial(cmd.Context())
		if err != nil {
			return err
		}
		defer c.Close()

		for _, r := range c.Rooms() {
			private := ""
			if r.IsPrivate {
				private = " (private)"
			}
			fmt.Printf("%s  %s%s  online=%d\n", r.ID, r.DisplayName, private, r.OnlineCount)
		}
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history [room-id]",
	Short: "Print room history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID, err := parseRoom(args[0])
		if err != nil {
			return err
		}

		c, err := dial(cmd.Context())
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.SelectRoom(cmd.Context(), roomID); err != nil {
			return err
		}
		for _, m := range c.Messages() {
			printMessage(m)
		}
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send [room-id] [text...]",
	Short: "Send one message and wait for the server echo",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID, err := parseRoom(args[0])
		if err != nil {
			return err
		}

		c, err := dial(cmd.Context())
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.SelectRoom(cmd.Context(), roomID); err != nil {
			return err
		}
		m, err := c.SendMessage(cmd.Context(), strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		printMessage(*m)
		return nil
	},
}
