package main

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mossy-p/airtext/internal/transfer"
)

var (
	flagShareTexts []string
	flagShareOut   string
)

var shareCmd = &cobra.Command{
	Use:     "share [files...]",
	Aliases: []string{"s"},
	Short:   "Create a room and send text or files once the other side joins",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 && len(flagShareTexts) == 0 {
			return fmt.Errorf("nothing to share: pass --text or at least one file")
		}
		for _, path := range args {
			if _, err := os.Stat(path); err != nil {
				return err
			}
		}
		if err := os.MkdirAll(flagShareOut, 0o755); err != nil {
			return err
		}
		return share(cmd.Context(), args)
	},
}

func init() {
	shareCmd.Flags().StringArrayVarP(&flagShareTexts, "text", "t", nil, "text message to send (repeatable)")
	shareCmd.Flags().StringVarP(&flagShareOut, "out", "o", ".", "directory for files the peer sends back")
}

func share(ctx context.Context, files []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	cl, cfg, err := dial(ctx, log)
	if err != nil {
		return err
	}
	code, err := cl.CreateRoom(ctx)
	if err != nil {
		_ = cl.Close()
		return err
	}

	l, err := newLink(cl, cfg, code, log)
	if err != nil {
		_ = cl.Close()
		return err
	}
	defer l.Close()
	go l.pump(ctx)

	fmt.Printf("Room code: %s\nWaiting for the other side to join...\n", code)
	if err := l.waitJoined(ctx); err != nil {
		return err
	}
	if err := l.peer.Offer(ctx); err != nil {
		return err
	}

	t, err := l.transport(ctx)
	if err != nil {
		return err
	}
	fmt.Println("Connected.")

	term := newTerminal(os.Stdout, flagShareOut, log)
	defer term.Wait()
	sess := transfer.NewSession(t, term, log)
	defer sess.Close()
	t.Deliver(sess.HandleMessage)

	for _, text := range flagShareTexts {
		if err := sess.SendText(text); err != nil {
			return err
		}
	}
	for _, path := range files {
		if err := sendFile(ctx, sess, path); err != nil {
			return err
		}
	}

	fmt.Println("Done sending. Press Ctrl+C to leave the room.")
	select {
	case <-t.Done():
	case <-ctx.Done():
	}
	return nil
}

func sendFile(ctx context.Context, sess *transfer.Session, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}

	name := filepath.Base(path)
	_, err = sess.SendFile(ctx, name, mime.TypeByExtension(filepath.Ext(name)), info.Size(), f)
	if err != nil {
		return fmt.Errorf("send %s: %w", name, err)
	}
	return nil
}

