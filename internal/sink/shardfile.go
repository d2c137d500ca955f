package sink

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"vigil/internal/fileutil"
)

// shardFile appends lines to <root>/<shard>/<name>, switching files when the
// shard changes.
type shardFile struct {
	root string
	name string

	mu    sync.Mutex
	shard string
	file  *os.File
}

func (s *shardFile) append(shard string, line []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil || s.shard != shard {
		if err := s.closeLocked(); err != nil {
			return err
		}
		f, err := fileutil.OpenAppend(filepath.Join(s.root, shard, s.name))
		if err != nil {
			return fmt.Errorf("open %s/%s: %w", shard, s.name, err)
		}
		s.file, s.shard = f, shard
	}
	if _, err := s.file.Write(line); err != nil {
		return fmt.Errorf("append %s/%s: %w", shard, s.name, err)
	}
	return nil
}

func (s *shardFile) sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	return s.file.Sync()
}

func (s *shardFile) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *shardFile) closeLocked() error {
	if s.file == nil {
		return nil
	}
	err := errors.Join(s.file.Sync(), s.file.Close())
	s.file, s.shard = nil, ""
	return err
}
