package state

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/agentstation/sheetsync/pkg/constants"
	"github.com/agentstation/sheetsync/pkg/errors"
)

type fileState struct {
	Fingerprint string    `json:"fingerprint"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// FileStore keeps the fingerprint in a small JSON file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a FileStore writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

// Load implements detector.Store. A missing file is not an error.
func (s *FileStore) Load(_ context.Context) (uint64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.WrapIO("read", s.path, err)
	}

	var st fileState
	if err := json.Unmarshal(data, &st); err != nil {
		return 0, false, errors.WrapParse("json", s.path, err)
	}
	fp, err := strconv.ParseUint(st.Fingerprint, 16, 64)
	if err != nil {
		return 0, false, errors.WrapParse("json", s.path, err)
	}
	return fp, true, nil
}

// Save implements detector.Store. The file is replaced via rename so a
// crash never leaves a partial write.
func (s *FileStore) Save(_ context.Context, fp uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(fileState{
		Fingerprint: strconv.FormatUint(fp, 16),
		UpdatedAt:   time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, constants.DirPermissions); err != nil {
		return errors.WrapIO("create", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".fingerprint-*")
	if err != nil {
		return errors.WrapIO("create", dir, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		return errors.WrapIO("write", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return errors.WrapIO("write", tmpName, err)
	}
	if err := os.Chmod(tmpName, constants.FilePermissions); err != nil {
		return errors.WrapIO("chmod", tmpName, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return errors.WrapIO("rename", s.path, err)
	}
	return nil
}
