package tokens

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// filePayload is the on-disk shape. Both tokens live in one document so a
// single rename publishes them together.
type filePayload struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// FileStore persists the token pair as a JSON file, the client-side
// equivalent of browser local storage. Writes go through a temp file and
// rename so a crash mid-write never leaves a half-updated pair, and the
// file is created with 0600 since it holds live credentials.
type FileStore struct {
	mu   sync.RWMutex
	path string
	cur  filePayload
}

// NewFileStore loads the pair persisted at path. A missing file is an empty
// pair, not an error: first run has no session.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "[tokens.NewFileStore] read")
	}
	if err := json.Unmarshal(raw, &s.cur); err != nil {
		// A corrupt token file is treated as no session rather than a hard
		// failure; the next login rewrites it.
		s.cur = filePayload{}
	}
	return s, nil
}

// Path returns the backing file location.
func (s *FileStore) Path() string {
	return s.path
}

// Pair implements Store.
func (s *FileStore) Pair() (string, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.AccessToken, s.cur.RefreshToken
}

// SetPair implements Store.
func (s *FileStore) SetPair(access, refresh string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := filePayload{AccessToken: access, RefreshToken: refresh}
	if err := s.write(next); err != nil {
		return err
	}
	s.cur = next
	return nil
}

// SetAccess implements Store.
func (s *FileStore) SetAccess(access string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := filePayload{AccessToken: access, RefreshToken: s.cur.RefreshToken}
	if err := s.write(next); err != nil {
		return err
	}
	s.cur = next
	return nil
}

// Clear implements Store. The file is removed entirely; an absent file and
// an empty pair are equivalent on the next load.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur = filePayload{}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "[tokens.FileStore.Clear] remove")
	}
	return nil
}

func (s *FileStore) write(p filePayload) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return errors.Wrap(err, "[tokens.FileStore] mkdir")
	}

	raw, err := json.Marshal(p)
	if err != nil {
		return errors.Wrap(err, "[tokens.FileStore] marshal")
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".tokens-*")
	if err != nil {
		return errors.Wrap(err, "[tokens.FileStore] create temp")
	}
	tmpName := tmp.Name()

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "[tokens.FileStore] chmod")
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "[tokens.FileStore] write temp")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "[tokens.FileStore] close temp")
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "[tokens.FileStore] rename")
	}
	return nil
}

var _ Store = (*FileStore)(nil)
var _ Store = (*MemoryStore)(nil)
