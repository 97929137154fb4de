package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const reportExt = ".json"

// DirStore persists each report as <root>/<runID>.json.
type DirStore struct {
	root string
}

func NewDirStore(root string) *DirStore {
	return &DirStore{root: strings.TrimSpace(root)}
}

func (s *DirStore) Put(_ context.Context, report Report) error {
	if err := report.validate(); err != nil {
		return err
	}
	fullPath, err := s.pathFor(report.RunID)
	if err != nil {
		return err
	}
	raw, err := encode(report)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return err
	}
	tmp := fullPath + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, fullPath)
}

func (s *DirStore) Get(_ context.Context, runID string) (Report, error) {
	fullPath, err := s.pathFor(runID)
	if err != nil {
		return Report{}, err
	}
	raw, err := os.ReadFile(fullPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Report{}, ErrNotFound
		}
		return Report{}, err
	}
	return decode(raw)
}

func (s *DirStore) List(_ context.Context) ([]string, error) {
	if s == nil || s.root == "" {
		return nil, fmt.Errorf("root is required")
	}
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, reportExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, reportExt))
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *DirStore) pathFor(runID string) (string, error) {
	if s == nil || s.root == "" {
		return "", fmt.Errorf("root is required")
	}
	runID, err := cleanRunID(runID)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, runID+reportExt), nil
}
