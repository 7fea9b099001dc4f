package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	flagServer  string
	flagToken   string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "airtext",
	Short: "Send text and files to another device through a short room code",
	Long: `airtext pairs two devices through a signaling server and moves text and
files between them over a direct WebRTC data channel.

Examples:
  airtext share --text "hello" notes.pdf
  airtext join K7QX`,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&flagServer, "server", "http://localhost:8080", "signaling server base URL")
	rootCmd.PersistentFlags().StringVar(&flagToken, "token", "", "existing session token to reuse")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "log negotiation details")

	rootCmd.AddCommand(shareCmd, joinCmd)
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
