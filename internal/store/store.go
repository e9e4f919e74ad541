// Package store persists the user-authored rule state: custom literal rules,
// heuristic rules and category toggles.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"flock-sentinel/internal/rules"
)

// Store loads and saves a complete rule set.
type Store interface {
	// Load returns the persisted rule set, or an error wrapping ErrNotFound
	// when nothing has been saved yet.
	Load(ctx context.Context) (*rules.RuleSet, error)
	// Save replaces the persisted rule set.
	Save(ctx context.Context, rs *rules.RuleSet) error
}

// FileStore keeps the rule set in one YAML file.
type FileStore struct {
	path string
}

// NewFileStore creates a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file.
func (s *FileStore) Path() string {
	return s.path
}

// Load implements Store.
func (s *FileStore) Load(_ context.Context) (*rules.RuleSet, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, WrapNotFoundError("Load", s.path)
		}
		return nil, &StorageError{Op: "Load", Table: s.path, Err: err}
	}
	rs, err := rules.ParseRuleSet(data)
	if err != nil {
		return nil, WrapInvalidData("Load", s.path, err)
	}
	return rs, nil
}

// Save implements Store. The file is replaced atomically.
func (s *FileStore) Save(_ context.Context, rs *rules.RuleSet) error {
	data, err := rules.MarshalRuleSet(rs)
	if err != nil {
		return WrapInvalidData("Save", s.path, err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return &StorageError{Op: "Save", Table: s.path, Err: err}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return &StorageError{Op: "Save", Table: s.path, Err: err}
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &StorageError{Op: "Save", Table: s.path, Err: err}
	}
	if err := tmp.Chmod(0640); err != nil {
		tmp.Close()
		return &StorageError{Op: "Save", Table: s.path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &StorageError{Op: "Save", Table: s.path, Err: err}
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return &StorageError{Op: "Save", Table: s.path, Err: err}
	}
	return nil
}

// LoadDir reads every .yaml/.yml file in dir as a list of literal or
// heuristic rules and merges them into one rule set. A file whose name
// contains "heuristic" is parsed as heuristic rules. Unreadable or invalid
// files are logged and skipped. A missing directory yields an empty set.
func LoadDir(dir string) (*rules.RuleSet, error) {
	rs := &rules.RuleSet{Version: rules.RuleSetVersion}
	if dir == "" {
		return rs, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return rs, nil
		}
		return nil, fmt.Errorf("failed to read rules directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			slog.Error("failed to read rule file", "file", name, "error", err)
			continue
		}

		if strings.Contains(name, "heuristic") {
			list, err := rules.ParseHeuristicRules(data)
			if err != nil {
				slog.Error("failed to parse rule file", "file", name, "error", err)
				continue
			}
			rs.Heuristic = append(rs.Heuristic, list...)
			continue
		}

		list, err := rules.ParseLiteralRules(data)
		if err != nil {
			slog.Error("failed to parse rule file", "file", name, "error", err)
			continue
		}
		for i := range list {
			list[i].Source = rules.SourceCustom
		}
		rs.Literal = append(rs.Literal, list...)
	}

	slog.Info("loaded rule files", "literal", len(rs.Literal), "heuristic", len(rs.Heuristic), "dir", dir)
	return rs, nil
}
