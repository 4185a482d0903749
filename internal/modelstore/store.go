// Package modelstore implements the transformation-definition store over a
// file tree: one .sql source per model, grouped into category directories,
// with sidecar .backup files holding pre-fix content.
package modelstore

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"pipemedic/internal/domain"
)

const backupSuffix = ".backup"

// Compile-time check.
var _ domain.ModelStore = (*Store)(nil)

// Store is a file-tree model store rooted at a models directory.
type Store struct {
	root string
}

// New creates a Store rooted at dir. The directory must already exist.
func New(dir string) (*Store, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("model store root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("model store root %s is not a directory", dir)
	}
	return &Store{root: dir}, nil
}

// List walks the tree and returns every .sql model, sorted by name. The
// category is the model's parent directory relative to the root ("" for
// models at the top level). Backup sidecars are not models.
func (s *Store) List() ([]domain.ModelDescriptor, error) {
	var out []domain.ModelDescriptor
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".sql") {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		category := filepath.Dir(rel)
		if category == "." {
			category = ""
		}
		out = append(out, domain.ModelDescriptor{
			Name:     strings.TrimSuffix(filepath.Base(path), ".sql"),
			Category: category,
			Path:     rel,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Read returns the model's source text.
func (s *Store) Read(name string) (string, error) {
	path, err := s.find(name)
	if err != nil {
		return "", err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read model %s: %w", name, err)
	}
	return string(content), nil
}

// Write replaces the model's source text in place.
func (s *Store) Write(name, content string) error {
	path, err := s.find(name)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write model %s: %w", name, err)
	}
	return nil
}

// Backup copies the current content to the sidecar backup file.
func (s *Store) Backup(name string) error {
	path, err := s.find(name)
	if err != nil {
		return err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read model %s: %w", name, err)
	}
	if err := os.WriteFile(path+backupSuffix, content, 0o644); err != nil {
		return fmt.Errorf("back up model %s: %w", name, err)
	}
	return nil
}

// HasBackup reports whether an unconsumed backup exists for the model.
func (s *Store) HasBackup(name string) bool {
	path, err := s.find(name)
	if err != nil {
		return false
	}
	_, err = os.Stat(path + backupSuffix)
	return err == nil
}

// Restore writes the backup content back verbatim and consumes the backup.
func (s *Store) Restore(name string) error {
	path, err := s.find(name)
	if err != nil {
		return err
	}
	content, err := os.ReadFile(path + backupSuffix)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.ErrNoBackup("no backup exists for model %s", name)
		}
		return fmt.Errorf("read backup for %s: %w", name, err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("restore model %s: %w", name, err)
	}
	return os.Remove(path + backupSuffix)
}

// DiscardBackup consumes the backup without restoring it.
func (s *Store) DiscardBackup(name string) error {
	path, err := s.find(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path + backupSuffix); err != nil {
		if os.IsNotExist(err) {
			return domain.ErrNoBackup("no backup exists for model %s", name)
		}
		return fmt.Errorf("discard backup for %s: %w", name, err)
	}
	return nil
}

// find resolves a model name to its on-disk path.
func (s *Store) find(name string) (string, error) {
	if strings.ContainsAny(name, `/\`) || name == "" {
		return "", domain.ErrValidation("invalid model name %q", name)
	}
	var found string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Base(path) == name+".sql" {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if found == "" {
		return "", domain.ErrNotFound("model %s not found", name)
	}
	return found, nil
}
