// Package filestore keeps one pretty-printed JSON file per record in a data
// directory, plus the sequence counter in seq.txt.
//
// Every write goes to a temporary file in the same directory which is synced
// and then renamed over the target, so readers only ever observe complete
// files. Locking is process-local: two processes writing into the same
// directory need an external lock (e.g. flock) around the allocator and the
// order transitions, which this package does not provide.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	logger "github.com/sirupsen/logrus"
	"github.com/wellywell/orderdesk/internal/store"
)

const (
	recordExt   = ".json"
	counterFile = "seq.txt"
	dirPerm     = 0o755
	filePerm    = 0o644
)

var _ store.Backend = (*Store)(nil)

type Store struct {
	dir string
}

// New creates the data directory if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("creating data dir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+recordExt)
}

func (s *Store) Get(_ context.Context, id string) ([]byte, error) {
	if !store.ValidID(id) {
		return nil, store.ErrNotFound
	}
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("%w", store.NewStorageError("get", id, err))
	}
	return data, nil
}

func (s *Store) Put(_ context.Context, id string, record []byte) error {
	if !store.ValidID(id) {
		return fmt.Errorf("%w: %q", store.ErrBadID, id)
	}
	if err := s.writeAtomic(id+recordExt, record); err != nil {
		return fmt.Errorf("%w", store.NewStorageError("put", id, err))
	}
	return nil
}

func (s *Store) List(_ context.Context) (map[string][]byte, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("%w", store.NewStorageError("list", "", err))
	}

	records := make(map[string][]byte, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, recordExt) || strings.HasPrefix(name, ".") {
			continue
		}
		id := strings.TrimSuffix(name, recordExt)
		if !store.ValidID(id) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				// removed by external housekeeping after ReadDir
				continue
			}
			return nil, fmt.Errorf("%w", store.NewStorageError("list", id, err))
		}
		records[id] = data
	}
	return records, nil
}

func (s *Store) LoadCounter(_ context.Context) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, counterFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("%w", store.NewStorageError("load", "counter", err))
	}
	return string(data), nil
}

func (s *Store) StoreCounter(_ context.Context, value string) error {
	if err := s.writeAtomic(counterFile, []byte(value)); err != nil {
		return fmt.Errorf("%w", store.NewStorageError("store", "counter", err))
	}
	return nil
}

func (s *Store) writeAtomic(name string, data []byte) (err error) {
	tmp, err := os.CreateTemp(s.dir, "."+name+"-*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp.Name(), filePerm); err != nil {
		return err
	}
	if err = os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return err
	}
	s.syncDir()
	return nil
}

// syncDir makes the rename durable. Some platforms cannot fsync a directory,
// which is logged and otherwise ignored.
func (s *Store) syncDir() {
	d, err := os.Open(s.dir)
	if err != nil {
		logger.Debugf("open data dir for sync: %s", err)
		return
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		logger.Debugf("sync data dir: %s", err)
	}
}
