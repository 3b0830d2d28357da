// Package session keeps the gpt conversation of each chat as a JSONL file
// named after the chat id: a header line followed by one line per message.
package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// Roles stored in a history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at,omitzero"`
}

// header is the first line of a history file.
type header struct {
	Chat    int64     `json:"chat"`
	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`
}

// History is the conversation of one chat.
type History struct {
	mu       sync.RWMutex
	head     header
	messages []Message
	now      func() time.Time
}

func (h *History) Chat() int64 { return h.head.Chat }

// Updated reports when the last exchange was added.
func (h *History) Updated() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.head.Updated
}

// AddExchange appends a prompt and the reply it produced.
func (h *History) AddExchange(prompt, answer string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	at := h.now().UTC()
	h.messages = append(h.messages,
		Message{Role: RoleUser, Content: prompt, At: at},
		Message{Role: RoleAssistant, Content: answer, At: at},
	)
	h.head.Updated = at
}

// Window returns the last limit messages, or all of them when limit <= 0.
// The window never starts on an assistant reply.
func (h *History) Window(limit int) []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	start := 0
	if limit > 0 && len(h.messages) > limit {
		start = len(h.messages) - limit
	}
	for start < len(h.messages) && h.messages[start].Role != RoleUser {
		start++
	}
	return append([]Message(nil), h.messages[start:]...)
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}

// Trim drops the oldest messages so at most max remain.
func (h *History) Trim(max int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if max > 0 && len(h.messages) > max {
		h.messages = append([]Message(nil), h.messages[len(h.messages)-max:]...)
	}
}

// Store loads and saves histories under one directory and caches the
// ones in use.
type Store struct {
	dir string
	now func() time.Time

	mu    sync.Mutex
	cache map[int64]*History
}

func NewStore(dir string) *Store {
	return &Store{dir: dir, now: time.Now, cache: make(map[int64]*History)}
}

func (s *Store) path(chat int64) string {
	return filepath.Join(s.dir, strconv.FormatInt(chat, 10)+".jsonl")
}

// Get returns the history of chat, reading it from disk on first use.
// A missing or unreadable file starts an empty history.
func (s *Store) Get(chat int64) *History {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.cache[chat]; ok {
		return h
	}
	h, err := s.read(chat)
	if err != nil {
		now := s.now().UTC()
		h = &History{head: header{Chat: chat, Created: now, Updated: now}}
	}
	h.now = s.now
	s.cache[chat] = h
	return h
}

// Clear forgets the history of chat and removes its file.
func (s *Store) Clear(chat int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, chat)
	if err := os.Remove(s.path(chat)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove history of %d: %w", chat, err)
	}
	return nil
}

// Save rewrites the file of h through a temp file and rename.
func (s *Store) Save(h *History) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, "history.*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)
	err = enc.Encode(h.head)
	for i := 0; err == nil && i < len(h.messages); i++ {
		err = enc.Encode(h.messages[i])
	}
	if err == nil {
		err = w.Flush()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write history of %d: %w", h.head.Chat, err)
	}
	return os.Rename(tmp.Name(), s.path(h.head.Chat))
}

func (s *Store) read(chat int64) (*History, error) {
	f, err := os.Open(s.path(chat))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	if !sc.Scan() {
		return nil, fmt.Errorf("history of %d is empty", chat)
	}
	h := &History{}
	if err := json.Unmarshal(sc.Bytes(), &h.head); err != nil {
		return nil, fmt.Errorf("history of %d: bad header: %w", chat, err)
	}
	h.head.Chat = chat
	for sc.Scan() {
		var m Message
		// a torn line from an older writer is skipped
		if json.Unmarshal(sc.Bytes(), &m) == nil {
			h.messages = append(h.messages, m)
		}
	}
	return h, sc.Err()
}
