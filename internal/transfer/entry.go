package transfer

import (
	"sync"
	"time"
)

// EntryKind discriminates ChatEntry.
type EntryKind int

const (
	KindText EntryKind = iota
	KindFile
)

// FileProgress is the file half of a ChatEntry.
type FileProgress struct {
	Meta     FileMeta
	Received int
	Total    int
	// Content is nil until every chunk has arrived.
	Content []byte
}

// Complete reports whether the file has been fully reassembled.
func (f FileProgress) Complete() bool {
	return f.Content != nil
}

// ChatEntry is one item of the conversation as shown to the user. File
// entries are republished under the same ID as chunks arrive.
type ChatEntry struct {
	Kind      EntryKind
	ID        string
	Local     bool
	Timestamp time.Time
	Text      string
	File      *FileProgress
}

// Sink receives new and updated entries.
type Sink interface {
	Publish(entry ChatEntry)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ChatEntry)

func (f SinkFunc) Publish(e ChatEntry) { f(e) }

// ChatLog is an ordered in-memory Sink. Publishing an entry with a known ID
// replaces it in place.
type ChatLog struct {
	mu      sync.Mutex
	entries []ChatEntry
	index   map[string]int
}

func NewChatLog() *ChatLog {
	return &ChatLog{index: make(map[string]int)}
}

func (l *ChatLog) Publish(e ChatEntry) {
	e = copyEntry(e)

	l.mu.Lock()
	defer l.mu.Unlock()

	if i, ok := l.index[e.ID]; ok {
		l.entries[i] = e
		return
	}
	l.index[e.ID] = len(l.entries)
	l.entries = append(l.entries, e)
}

// Entries returns a copy of the log in publication order.
func (l *ChatLog) Entries() []ChatEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]ChatEntry, len(l.entries))
	for i, e := range l.entries {
		out[i] = copyEntry(e)
	}
	return out
}

// Get returns the entry with the given ID.
func (l *ChatLog) Get(id string) (ChatEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	i, ok := l.index[id]
	if !ok {
		return ChatEntry{}, false
	}
	return copyEntry(l.entries[i]), true
}

// copyEntry detaches the FileProgress pointer. Content is shared: it is
// written once on completion and never modified afterwards.
func copyEntry(e ChatEntry) ChatEntry {
	if e.File != nil {
		f := *e.File
		e.File = &f
	}
	return e
}
