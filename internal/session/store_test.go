package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func fixedStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(t.TempDir())
	s.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestNewHistory(t *testing.T) {
	s := fixedStore(t)
	h := s.Get(-1001234567890)
	if h.Len() != 0 {
		t.Fatalf("expected 0 messages, got %d", h.Len())
	}
	if h.Chat() != -1001234567890 {
		t.Fatalf("unexpected chat %d", h.Chat())
	}
}

func TestWindow(t *testing.T) {
	h := fixedStore(t).Get(42)
	for i := 0; i < 3; i++ {
		h.AddExchange(fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
	}

	if got := h.Window(0); len(got) != 6 {
		t.Fatalf("Window(0) = %d messages, want 6", len(got))
	}
	got := h.Window(4)
	if len(got) != 4 || got[0].Content != "q1" {
		t.Fatalf("Window(4) = %+v", got)
	}
	// a window of 3 would start on an assistant reply and is shifted
	got = h.Window(3)
	if len(got) != 2 || got[0].Content != "q2" {
		t.Fatalf("Window(3) = %+v", got)
	}
}

func TestTrim(t *testing.T) {
	h := fixedStore(t).Get(7)
	for i := 0; i < 5; i++ {
		h.AddExchange(fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
	}
	h.Trim(4)
	w := h.Window(0)
	if len(w) != 4 || w[0].Content != "q3" {
		t.Fatalf("after Trim(4): %+v", w)
	}
}

func TestSaveAndReload(t *testing.T) {
	s := fixedStore(t)
	h := s.Get(99999)
	h.AddExchange("save me", "saved")
	if err := s.Save(h); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	s2 := NewStore(s.dir)
	got := s2.Get(99999).Window(0)
	at := s.now()
	want := []Message{
		{Role: RoleUser, Content: "save me", At: at},
		{Role: RoleAssistant, Content: "saved", At: at},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("reloaded messages (-want +got):\n%s", diff)
	}
	if !s2.Get(99999).Updated().Equal(at) {
		t.Errorf("Updated = %v", s2.Get(99999).Updated())
	}

	leftovers, _ := filepath.Glob(filepath.Join(s.dir, "*.tmp"))
	if len(leftovers) != 0 {
		t.Errorf("temp files left behind: %v", leftovers)
	}
}

func TestCorruptHeaderStartsEmpty(t *testing.T) {
	s := fixedStore(t)
	if err := os.WriteFile(s.path(5), []byte("not json\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if n := s.Get(5).Len(); n != 0 {
		t.Errorf("expected empty history, got %d", n)
	}
}

func TestClear(t *testing.T) {
	s := fixedStore(t)
	h := s.Get(1)
	h.AddExchange("forget me", "ok")
	if err := s.Save(h); err != nil {
		t.Fatal(err)
	}

	if err := s.Clear(1); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.dir, "1.jsonl")); !os.IsNotExist(err) {
		t.Errorf("history file still present: %v", err)
	}
	if s.Get(1).Len() != 0 {
		t.Error("cleared history still has messages")
	}
	if err := s.Clear(404); err != nil {
		t.Errorf("Clear of missing history: %v", err)
	}
}

func TestGetIsCached(t *testing.T) {
	s := fixedStore(t)
	h1 := s.Get(3)
	h1.AddExchange("cached", "yes")
	if h2 := s.Get(3); h1 != h2 || h2.Len() != 2 {
		t.Errorf("expected the cached history, got %p with %d messages", h2, h2.Len())
	}
}

func TestConcurrentExchanges(t *testing.T) {
	h := fixedStore(t).Get(11)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			h.AddExchange(fmt.Sprintf("q%d", n), "a")
		}(i)
	}
	wg.Wait()
	if h.Len() != 100 {
		t.Errorf("expected 100 messages, got %d", h.Len())
	}
}
