package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/joeblew999/plat-survey/internal/proximity"
)

// File keeps all completion sets in DataDir/completions.json.
type File struct {
	path string
	mu   sync.Mutex
	sets map[string][]string
}

// NewFile loads dataDir/completions.json, starting empty if it does not exist.
func NewFile(dataDir string) (*File, error) {
	if dataDir == "" {
		dataDir = "."
	}
	f := &File{
		path: filepath.Join(dataDir, "completions.json"),
		sets: make(map[string][]string),
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return f, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, &f.sets); err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.path, err)
	}
	return f, nil
}

func (f *File) Get(ctx context.Context, taskID string) (proximity.CompletionSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return proximity.NewCompletionSet(f.sets[taskID]...), nil
}

func (f *File) Put(ctx context.Context, taskID string, set proximity.CompletionSet) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	prev, had := f.sets[taskID]
	f.sets[taskID] = mergeIDs(prev, set)
	if err := f.save(); err != nil {
		if had {
			f.sets[taskID] = prev
		} else {
			delete(f.sets, taskID)
		}
		return err
	}
	return nil
}

// save writes through a temp file so a crash never leaves half a document.
func (f *File) save() error {
	data, err := json.MarshalIndent(f.sets, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

func (f *File) Close() error { return nil }
