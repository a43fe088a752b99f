package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Store persists the full rule set. Every mutation rewrites it in full.
type Store interface {
	Load(ctx context.Context) ([]Automation, error)
	Save(ctx context.Context, automations []Automation) error
}

// fileDocument is the on-disk layout.
type fileDocument struct {
	Automations []Automation `json:"automations"`
}

// FileStore keeps the rule set in a pretty-printed JSON file.
//
// Writes go to a temp file in the same directory followed by a rename, so a
// crash never leaves a half-written file behind.
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the rule set. A missing file is an empty rule set; a file that
// does not parse returns ErrPersistence.
func (s *FileStore) Load(_ context.Context) ([]Automation, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []Automation{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrPersistence, s.path, err)
	}

	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %w", ErrPersistence, s.path, err)
	}
	if doc.Automations == nil {
		doc.Automations = []Automation{}
	}
	return doc.Automations, nil
}

// Save writes the rule set atomically.
func (s *FileStore) Save(_ context.Context, automations []Automation) error {
	data, err := encodeDocument(automations)
	if err != nil {
		return fmt.Errorf("%w: encoding: %w", ErrPersistence, err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("%w: creating %s: %w", ErrPersistence, dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: creating temp file: %w", ErrPersistence, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: writing temp file: %w", ErrPersistence, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: syncing temp file: %w", ErrPersistence, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: closing temp file: %w", ErrPersistence, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("%w: replacing %s: %w", ErrPersistence, s.path, err)
	}
	return nil
}

// encodeDocument renders the file body: two-space indent, trailing newline.
func encodeDocument(automations []Automation) ([]byte, error) {
	doc := fileDocument{Automations: make([]Automation, len(automations))}
	for i, a := range automations {
		if a.Conditions == nil {
			a.Conditions = []Condition{}
		}
		doc.Automations[i] = a
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
