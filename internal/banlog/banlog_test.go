package banlog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "aban", "actions.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAddAndList(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	recs := []Record{
		{Action: "ban", ChatID: -1001, ChatTitle: "Group A", UserID: 42, Reason: "spam", OK: true, CreatedAt: at},
		{Action: "ban", ChatID: -1002, ChatTitle: "Group B", UserID: 42, OK: false, Error: "CHAT_ADMIN_REQUIRED", CreatedAt: at},
		{Action: "mute", ChatID: -1001, UserID: 7, OK: true, CreatedAt: at},
	}
	for _, r := range recs {
		if _, err := s.Add(ctx, r); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	got, err := s.List(ctx, Query{UserID: 42})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []Record{recs[1], recs[0]}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(Record{}, "ID")); diff != "" {
		t.Errorf("List mismatch (-want +got):\n%s", diff)
	}

	all, _ := s.List(ctx, Query{Limit: 2})
	if len(all) != 2 || all[0].UserID != 7 {
		t.Errorf("List(limit 2) = %+v", all)
	}
}

func TestCount(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	s.Add(ctx, Record{Action: "ban", ChatID: -1, UserID: 5, OK: true})
	s.Add(ctx, Record{Action: "ban", ChatID: -2, UserID: 5, OK: true})
	s.Add(ctx, Record{Action: "ban", ChatID: -3, UserID: 5, OK: false, Error: "x"})

	ok, failed, err := s.Count(ctx, 5)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if ok != 2 || failed != 1 {
		t.Errorf("Count = %d/%d, want 2/1", ok, failed)
	}
	ok, failed, _ = s.Count(ctx, 999)
	if ok != 0 || failed != 0 {
		t.Errorf("Count for unknown user = %d/%d", ok, failed)
	}
}

func TestReopenKeepsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "actions.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	s.Add(context.Background(), Record{Action: "kick", ChatID: -9, UserID: 1, OK: true})
	s.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	got, _ := s2.List(context.Background(), Query{})
	if len(got) != 1 || got[0].Action != "kick" {
		t.Errorf("after reopen: %+v", got)
	}
}
