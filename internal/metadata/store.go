package metadata

import (
	"fmt"
	"os"
	"path/filepath"
)

// Store keeps the last-known metadata document of each federation on
// disk, one file per federation slug. The stored copy backs stats-only
// refresh paths and manual inspection.
type Store struct {
	dir string
}

// NewStore creates the document store rooted at dir
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create document store: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Path returns the document path for a federation slug
func (s *Store) Path(slug string) string {
	return filepath.Join(s.dir, slug+"-metadata.xml")
}

// Save atomically replaces the stored document for a federation
func (s *Store) Save(slug string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, slug+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to stage document: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close staged document: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.Path(slug)); err != nil {
		return fmt.Errorf("failed to replace document: %w", err)
	}
	return nil
}

// Load reads the stored document for a federation, or nil when no
// document has ever been stored.
func (s *Store) Load(slug string) ([]byte, error) {
	data, err := os.ReadFile(s.Path(slug))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read stored document: %w", err)
	}
	return data, nil
}
