package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/thereayou/storychat/pkg/chatclient"
)

func init() {
	rootCmd.AddCommand(chatCmd)
}

var chatCmd = &cobra.Command{
	Use:   "chat [room-id]",
	Short: "Interactive chat in a room; each stdin line is sent as a message",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID, err := parseRoom(args[0])
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		c, err := dial(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.SelectRoom(ctx, roomID); err != nil {
			return err
		}
		for _, m := range c.Messages() {
			printMessage(m)
		}

		go watch(ctx, c)

		lines := make(chan string)
		go func() {
			defer close(lines)
			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				lines <- scanner.Text()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					return nil
				}
				line = strings.TrimSpace(line)
				if line == "" {
					continue
				}
				if _, err := c.SendMessage(ctx, line); err != nil {
					fmt.Fprintf(os.Stderr, "not sent: %v\n", err)
				}
			}
		}
	},
}

// watch печатает входящие сообщения и переподключается после обрыва
func watch(ctx context.Context, c *chatclient.Controller) {
	for ev := range c.Events() {
		switch ev.Type {
		case chatclient.EventMessage:
			printMessage(*ev.Message)
		case chatclient.EventError:
			fmt.Fprintf(os.Stderr, "server: %v\n", ev.Err)
		case chatclient.EventRoomAdded:
			fmt.Printf("* you were added to room %s\n", ev.RoomID)
		case chatclient.EventDisconnected:
			fmt.Fprintln(os.Stderr, "connection lost, reconnecting...")
			for attempt := 1; ctx.Err() == nil; attempt++ {
				if err := c.Resume(ctx); err == nil {
					fmt.Fprintln(os.Stderr, "reconnected")
					break
				}
				select {
				case <-ctx.Done():
				case <-time.After(time.Duration(attempt) * time.Second):
				}
			}
		}
	}
}
