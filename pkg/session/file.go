package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/levenlabs/go-lflag"
	"github.com/shouldiwash/shouldiwash/pkg/log"
	"github.com/shouldiwash/shouldiwash/pkg/types"
)

// FileStore keeps the session as a JSON file readable only by the current
// user.
type FileStore struct {
	path          string
	encryptionKey string

	mu sync.Mutex
}

// NewFileStore returns a store backed by the file at path.
func NewFileStore(path, encryptionKey string) *FileStore {
	return &FileStore{path: path, encryptionKey: encryptionKey}
}

func configuredFile() *FileStore {
	path := lflag.String("session-file", "", "Path of the session file (defaults to <user config dir>/shouldiwash/session.json)")

	f := &FileStore{}

	lflag.Do(func() {
		f.path = *path
		if f.path == "" {
			dir, err := os.UserConfigDir()
			if err != nil {
				// leave the path empty so Validate reports it if the file store is used
				return
			}
			f.path = filepath.Join(dir, "shouldiwash", "session.json")
		}
	})

	return f
}

// Validate checks if the store is properly configured.
func (f *FileStore) Validate() error {
	if f.path == "" {
		return errors.New("session-file is required when no user config directory is available")
	}
	return nil
}

// Load reads the session file.
func (f *FileStore) Load(ctx context.Context) (types.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.load(ctx)
}

func (f *FileStore) load(ctx context.Context) (types.Session, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return types.Session{}, ErrNoSession
	}
	if err != nil {
		return types.Session{}, fmt.Errorf("failed to read session file: %w", err)
	}
	sess, err := decodeDocument(ctx, f.encryptionKey, data)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "unreadable session file", slog.String("path", f.path), slog.Any("error", err))
		return types.Session{}, err
	}
	if !sess.LoggedIn() {
		return types.Session{}, ErrNoSession
	}
	return sess, nil
}

// Save writes the session to a temporary file and renames it into place so a
// crash never leaves a partial file behind.
func (f *FileStore) Save(ctx context.Context, sess types.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.save(ctx, sess)
}

func (f *FileStore) save(ctx context.Context, sess types.Session) error {
	data, err := encodeDocument(ctx, f.encryptionKey, sess)
	if err != nil {
		return err
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create session dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".session-*.json")
	if err != nil {
		return fmt.Errorf("failed to create session file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set session file mode: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close session file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	log.Ctx(ctx).DebugContext(ctx, "saved session", slog.String("path", f.path))
	return nil
}

// Update loads the session, applies fn and saves the result while holding the
// file lock.
func (f *FileStore) Update(ctx context.Context, fn func(*types.Session) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	sess, err := f.load(ctx)
	if err != nil {
		return err
	}
	if err := fn(&sess); err != nil {
		return err
	}
	return f.save(ctx, sess)
}

// Clear deletes the session file.
func (f *FileStore) Clear(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}

// Close is a no-op for the file store.
func (f *FileStore) Close() error {
	return nil
}
