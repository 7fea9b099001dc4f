package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/mossy-p/airtext/internal/transfer"
)

// terminal prints conversation entries and saves completed incoming files.
// Saves run in the background so a slow disk never stalls message delivery.
type terminal struct {
	dir   string
	log   *zap.Logger
	write func(name string, data []byte, perm os.FileMode) error

	mu    sync.Mutex // guards out and saved
	out   io.Writer
	saved map[string]bool
	saves sync.WaitGroup
}

func newTerminal(out io.Writer, dir string, log *zap.Logger) *terminal {
	return &terminal{out: out, dir: dir, log: log, write: os.WriteFile, saved: make(map[string]bool)}
}

func (t *terminal) Publish(e transfer.ChatEntry) {
	who := "peer"
	if e.Local {
		who = "you"
	}
	stamp := e.Timestamp.Local().Format("15:04:05")

	switch e.Kind {
	case transfer.KindText:
		t.printf("[%s] %s: %s\n", stamp, who, e.Text)
	case transfer.KindFile:
		f := e.File
		if e.Local {
			t.printf("[%s] %s: sent %s (%s)\n", stamp, who, f.Meta.Name, humanSize(f.Meta.Size))
			return
		}
		if !f.Complete() {
			t.printf("[%s] %s: receiving %s %d/%d\n", stamp, who, f.Meta.Name, f.Received, f.Total)
			return
		}
		t.save(e.ID, stamp, f)
	}
}

// Wait blocks until every started save has finished.
func (t *terminal) Wait() {
	t.saves.Wait()
}

func (t *terminal) printf(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, format, args...)
}

func (t *terminal) save(id, stamp string, f *transfer.FileProgress) {
	t.mu.Lock()
	if t.saved[id] {
		t.mu.Unlock()
		return
	}
	t.saved[id] = true
	t.mu.Unlock()

	name, size, content := f.Meta.Name, f.Meta.Size, f.Content
	t.saves.Add(1)
	go func() {
		defer t.saves.Done()

		path := filepath.Join(t.dir, safeName(name))
		if err := t.write(path, content, 0o644); err != nil {
			t.log.Error("failed to save received file", zap.String("path", path), zap.Error(err))
			t.printf("[%s] peer: %s could not be saved: %v\n", stamp, name, err)
			return
		}
		t.printf("[%s] peer: saved %s (%s)\n", stamp, path, humanSize(size))
	}()
}

// safeName strips directories so a peer cannot write outside the output dir.
func safeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == ".." || name == "" {
		return "received"
	}
	return name
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
