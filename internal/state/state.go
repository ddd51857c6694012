// Package state keeps the "current task and branch" selection that CLI
// commands fall back to when no explicit task or branch is given.
package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Selection reads and writes the current selection.
type Selection interface {
	CurrentProject() (string, error)
	SetCurrentProject(name string) error
	CurrentTask() (string, error)
	SetCurrentTask(name string) error
	CurrentBranch() (string, error)
	SetCurrentBranch(name string) error
}

// Values is the persisted selection. Empty fields mean "not selected".
type Values struct {
	Project string `yaml:"project,omitempty"`
	Task    string `yaml:"task,omitempty"`
	Branch  string `yaml:"branch,omitempty"`
}

// FileStore persists the selection as a small YAML file. Every call reads or
// rewrites the whole file.
type FileStore struct {
	Path string
}

// NewFileStore returns a FileStore at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

// Load reads the file. A missing file yields empty values.
func (f *FileStore) Load() (Values, error) {
	var v Values
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return v, nil
		}
		return v, fmt.Errorf("state: read %s: %w", f.Path, err)
	}
	if err := yaml.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("state: parse %s: %w", f.Path, err)
	}
	return v, nil
}

// Save writes all values, creating the parent directory if needed.
func (f *FileStore) Save(v Values) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0755); err != nil {
		return fmt.Errorf("state: create dir: %w", err)
	}
	data, err := yaml.Marshal(&v)
	if err != nil {
		return fmt.Errorf("state: marshal: %w", err)
	}
	if err := os.WriteFile(f.Path, data, 0644); err != nil {
		return fmt.Errorf("state: write %s: %w", f.Path, err)
	}
	return nil
}

func (f *FileStore) update(fn func(v *Values)) error {
	v, err := f.Load()
	if err != nil {
		return err
	}
	fn(&v)
	return f.Save(v)
}

func (f *FileStore) CurrentProject() (string, error) {
	v, err := f.Load()
	return v.Project, err
}

func (f *FileStore) SetCurrentProject(name string) error {
	return f.update(func(v *Values) { v.Project = name })
}

func (f *FileStore) CurrentTask() (string, error) {
	v, err := f.Load()
	return v.Task, err
}

func (f *FileStore) SetCurrentTask(name string) error {
	return f.update(func(v *Values) { v.Task = name })
}

func (f *FileStore) CurrentBranch() (string, error) {
	v, err := f.Load()
	return v.Branch, err
}

func (f *FileStore) SetCurrentBranch(name string) error {
	return f.update(func(v *Values) { v.Branch = name })
}

// MemStore is an in-process Selection that keeps nothing on disk.
type MemStore struct {
	mu sync.Mutex
	v  Values
}

func (m *MemStore) CurrentProject() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.v.Project, nil
}

func (m *MemStore) SetCurrentProject(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.v.Project = name
	return nil
}

func (m *MemStore) CurrentTask() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.v.Task, nil
}

func (m *MemStore) SetCurrentTask(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.v.Task = name
	return nil
}

func (m *MemStore) CurrentBranch() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.v.Branch, nil
}

func (m *MemStore) SetCurrentBranch(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.v.Branch = name
	return nil
}

var (
	_ Selection = (*FileStore)(nil)
	_ Selection = (*MemStore)(nil)
)
