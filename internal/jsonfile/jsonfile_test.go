package jsonfile

import (
	"os"
	"path/filepath"
	"testing"
)

type state struct {
	Server int    `json:"server"`
	Name   string `json:"name"`
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	if err := Save(path, state{Server: 1234, Name: "x"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	var got state
	ok, err := Load(path, &got)
	if err != nil || !ok {
		t.Fatalf("Load = %v, %v", ok, err)
	}
	if got.Server != 1234 || got.Name != "x" {
		t.Errorf("got %+v", got)
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %v", entries)
	}
}

func TestLoadMissingAndEmpty(t *testing.T) {
	dir := t.TempDir()
	v := state{Server: 7}
	ok, err := Load(filepath.Join(dir, "none.json"), &v)
	if ok || err != nil || v.Server != 7 {
		t.Errorf("missing: ok=%v err=%v v=%+v", ok, err, v)
	}
	empty := filepath.Join(dir, "empty.json")
	os.WriteFile(empty, nil, 0o644)
	if ok, err := Load(empty, &v); ok || err != nil {
		t.Errorf("empty: ok=%v err=%v", ok, err)
	}
}

func TestLoadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(path, []byte("{nope"), 0o644)
	var v state
	if _, err := Load(path, &v); err == nil {
		t.Fatal("expected parse error")
	}
}
