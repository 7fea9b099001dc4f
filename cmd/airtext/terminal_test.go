package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mossy-p/airtext/internal/transfer"
)

func TestSafeName(t *testing.T) {
	cases := map[string]string{
		"notes.txt":           "notes.txt",
		"../../etc/passwd":    "passwd",
		`..\..\windows\a.dll`: "a.dll",
		"/abs/path/photo.jpg": "photo.jpg",
		"..":                  "received",
		"":                    "received",
	}
	for in, want := range cases {
		if got := safeName(in); got != want {
			t.Errorf("safeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHumanSize(t *testing.T) {
	cases := map[int64]string{
		0:               "0 B",
		1023:            "1023 B",
		1024:            "1.0 KiB",
		1536:            "1.5 KiB",
		5 * 1024 * 1024: "5.0 MiB",
	}
	for in, want := range cases {
		if got := humanSize(in); got != want {
			t.Errorf("humanSize(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestTerminalSavesCompletedFileOnce(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	term := newTerminal(&out, dir, zap.NewNop())

	meta := transfer.FileMeta{FileID: strings.Repeat("a", transfer.IDSize), Name: "../hello.txt", Size: 5, TotalChunks: 1}
	entry := transfer.ChatEntry{
		Kind:      transfer.KindFile,
		ID:        meta.FileID,
		Timestamp: time.Now(),
		File:      &transfer.FileProgress{Meta: meta, Received: 0, Total: 1},
	}
	term.Publish(entry)

	entry.File = &transfer.FileProgress{Meta: meta, Received: 1, Total: 1, Content: []byte("hello")}
	term.Publish(entry)
	term.Publish(entry)
	term.Wait()

	got, err := os.ReadFile(filepath.Join(dir, "hello.txt"))
	if err != nil {
		t.Fatalf("read saved file: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("saved content = %q", got)
	}
	if n := strings.Count(out.String(), "saved "); n != 1 {
		t.Fatalf("saved printed %d times:\n%s", n, out.String())
	}
	if !strings.Contains(out.String(), "receiving ../hello.txt 0/1") {
		t.Fatalf("missing progress line:\n%s", out.String())
	}
}

func TestTerminalSaveDoesNotBlockPublish(t *testing.T) {
	var out bytes.Buffer
	term := newTerminal(&out, t.TempDir(), zap.NewNop())

	release := make(chan struct{})
	writing := make(chan string, 1)
	term.write = func(name string, data []byte, perm os.FileMode) error {
		writing <- name
		<-release
		return nil
	}

	meta := transfer.FileMeta{FileID: strings.Repeat("b", transfer.IDSize), Name: "big.bin", Size: 3, TotalChunks: 1}
	term.Publish(transfer.ChatEntry{
		Kind:      transfer.KindFile,
		ID:        meta.FileID,
		Timestamp: time.Now(),
		File:      &transfer.FileProgress{Meta: meta, Received: 1, Total: 1, Content: []byte("abc")},
	})
	select {
	case name := <-writing:
		if filepath.Base(name) != "big.bin" {
			t.Fatalf("writing %q", name)
		}
	case <-time.After(time.Second):
		t.Fatalf("save never started")
	}

	published := make(chan struct{})
	go func() {
		term.Publish(transfer.ChatEntry{Kind: transfer.KindText, ID: "t", Timestamp: time.Now(), Text: "next"})
		close(published)
	}()
	select {
	case <-published:
	case <-time.After(time.Second):
		t.Fatalf("publish blocked behind a file save")
	}

	close(release)
	term.Wait()
	if !strings.Contains(out.String(), "saved ") {
		t.Fatalf("save result not printed:\n%s", out.String())
	}
}

func TestTerminalPrintsText(t *testing.T) {
	var out bytes.Buffer
	term := newTerminal(&out, t.TempDir(), zap.NewNop())

	term.Publish(transfer.ChatEntry{Kind: transfer.KindText, ID: "1", Local: true, Timestamp: time.Now(), Text: "hi"})
	term.Publish(transfer.ChatEntry{Kind: transfer.KindText, ID: "2", Timestamp: time.Now(), Text: "hey"})

	if !strings.Contains(out.String(), "you: hi") || !strings.Contains(out.String(), "peer: hey") {
		t.Fatalf("unexpected output:\n%s", out.String())
	}
}
