package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/thereayou/storychat/pkg/chatclient"
	"go.uber.org/zap"
)

var (
	serverURL string
	token     string
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "chatcli",
	Short: "Terminal client for storychat rooms",
	Long: `chatcli connects to a storychat server over one WebSocket session,
lists rooms, prints history and sends messages.`,
	SilenceUsage: true,
}

// Execute вызывается из main
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", envOr("STORYCHAT_URL", "http://localhost:8080"), "server base URL")
	rootCmd.PersistentFlags().StringVarP(&token, "token", "t", os.Getenv("STORYCHAT_TOKEN"), "access token (from /auth/login)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func dial(ctx context.Context) (*chatclient.Controller, error) {
	log := zap.NewNop()
	if verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			return nil, err
		}
		log = l
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return chatclient.Dial(ctx, chatclient.Config{BaseURL: serverURL, Token: token, Logger: log})
}

func parseRoom(arg string) (uuid.UUID, error) {
	id, err := uuid.Parse(arg)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid room id %q", arg)
	}
	return id, nil
}

func printMessage(m chatclient.Message) {
	fmt.Printf("[%d %s] %s: %s\n", m.Sequence, m.CreatedAt.Local().Format("15:04:05"), m.User.Username, m.Content)
}
