package cron

import (
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/coopco/telebox/internal/jsonfile"
)

// Store persists tasks in a single JSON file. Every call reads the file
// fresh, so edits made by another Store on the same path are seen.
type Store struct {
	path string
	mu   sync.Mutex
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string { return s.path }

func (s *Store) load() (storeFile, error) {
	var f storeFile
	if _, err := jsonfile.Load(s.path, &f); err != nil {
		return storeFile{}, fmt.Errorf("task store: %w", err)
	}
	return f, nil
}

func (s *Store) save(f storeFile) error {
	return jsonfile.Save(s.path, f)
}

// Create assigns the next id to t and appends it.
func (s *Store) Create(t Task) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return Task{}, err
	}
	f.Seq++
	t.ID = strconv.Itoa(f.Seq)
	f.Tasks = append(f.Tasks, t)
	if err := s.save(f); err != nil {
		return Task{}, err
	}
	return t, nil
}

func (s *Store) Get(id string) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return Task{}, err
	}
	for _, t := range f.Tasks {
		if t.ID == id {
			return t, nil
		}
	}
	return Task{}, fmt.Errorf("task %s: %w", id, ErrNotFound)
}

// Update applies fn to the task with the given id and saves the result.
// Nothing is written when fn returns an error.
func (s *Store) Update(id string, fn func(*Task) error) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return Task{}, err
	}
	for i := range f.Tasks {
		if f.Tasks[i].ID != id {
			continue
		}
		t := f.Tasks[i]
		if err := fn(&t); err != nil {
			return f.Tasks[i], err
		}
		t.ID = id
		f.Tasks[i] = t
		if err := s.save(f); err != nil {
			return Task{}, err
		}
		return f.Tasks[i], nil
	}
	return Task{}, fmt.Errorf("task %s: %w", id, ErrNotFound)
}

func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return err
	}
	for i, t := range f.Tasks {
		if t.ID == id {
			f.Tasks = append(f.Tasks[:i], f.Tasks[i+1:]...)
			return s.save(f)
		}
	}
	return fmt.Errorf("task %s: %w", id, ErrNotFound)
}

// List returns tasks ordered by numeric id.
func (s *Store) List() ([]Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return nil, err
	}
	tasks := append([]Task(nil), f.Tasks...)
	sort.SliceStable(tasks, func(i, j int) bool {
		a, _ := strconv.Atoi(tasks[i].ID)
		b, _ := strconv.Atoi(tasks[j].ID)
		return a < b
	})
	return tasks, nil
}
