package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mossy-p/airtext/internal/roomcode"
	"github.com/mossy-p/airtext/internal/transfer"
)

var flagJoinOut string

var joinCmd = &cobra.Command{
	Use:     "join CODE",
	Aliases: []string{"j"},
	Short:   "Join a room and receive what the other side sends",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		code := roomcode.Normalize(args[0])
		if !roomcode.Valid(code) {
			return fmt.Errorf("%q is not a room code", args[0])
		}
		if err := os.MkdirAll(flagJoinOut, 0o755); err != nil {
			return err
		}
		return join(cmd.Context(), code)
	},
}

func init() {
	joinCmd.Flags().StringVarP(&flagJoinOut, "out", "o", ".", "directory to save received files in")
}

func join(ctx context.Context, code string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	cl, cfg, err := dial(ctx, log)
	if err != nil {
		return err
	}

	// The peer must exist before the join reply, since the offer may follow
	// it immediately.
	l, err := newLink(cl, cfg, code, log)
	if err != nil {
		_ = cl.Close()
		return err
	}
	defer l.Close()
	go l.pump(ctx)

	if err := cl.JoinRoom(ctx, code); err != nil {
		return err
	}
	fmt.Printf("Joined %s. Waiting for the connection...\n", code)

	t, err := l.transport(ctx)
	if err != nil {
		return err
	}
	fmt.Println("Connected. Press Ctrl+C to leave.")

	term := newTerminal(os.Stdout, flagJoinOut, log)
	defer term.Wait()
	sess := transfer.NewSession(t, term, log)
	defer sess.Close()
	t.Deliver(sess.HandleMessage)

	select {
	case <-t.Done():
		fmt.Println("The other side left.")
	case <-ctx.Done():
	}
	return nil
}
