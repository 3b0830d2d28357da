package cron

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound    = errors.New("task not found")
	ErrInvalidCron = errors.New("invalid cron expression")
)

// Task is the record shared by every scheduled plugin. Kind selects how
// Payload is decoded; the cron package never looks inside it.
type Task struct {
	ID         string          `json:"id"`
	Plugin     string          `json:"plugin"`
	Kind       string          `json:"kind"`
	Cron       string          `json:"cron"`
	Remark     string          `json:"remark,omitempty"`
	Disabled   bool            `json:"disabled"`
	CreatedAt  time.Time       `json:"createdAt"`
	LastRun    time.Time       `json:"lastRun,omitzero"`
	LastResult string          `json:"lastResult,omitempty"`
	LastError  string          `json:"lastError,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// Decode unmarshals the payload into v.
func (t Task) Decode(v any) error {
	if len(t.Payload) == 0 {
		return fmt.Errorf("task %s has no payload", t.ID)
	}
	if err := json.Unmarshal(t.Payload, v); err != nil {
		return fmt.Errorf("task %s: decode %s payload: %w", t.ID, t.Kind, err)
	}
	return nil
}

// NewTask builds a task with payload marshalled from v.
func NewTask(kind, expr string, v any) (Task, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Task{}, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return Task{Kind: kind, Cron: expr, Payload: raw}, nil
}

// Filter selects tasks in List. Zero fields match everything.
type Filter struct {
	Kind     string
	Enabled  bool
	Disabled bool
}

func (f Filter) match(t Task) bool {
	if f.Kind != "" && t.Kind != f.Kind {
		return false
	}
	if f.Enabled && t.Disabled {
		return false
	}
	if f.Disabled && !t.Disabled {
		return false
	}
	return true
}

// storeFile is the on-disk layout. Seq only grows, so ids are never reused.
type storeFile struct {
	Seq   int    `json:"seq"`
	Tasks []Task `json:"tasks"`
}
