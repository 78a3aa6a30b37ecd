package internal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// ErrBlobNotFound is returned by ReadBlob when nothing has been stored yet.
var ErrBlobNotFound = errors.New("blob not found")

// BlobStore persists one opaque document.
type BlobStore interface {
	ReadBlob(ctx context.Context) ([]byte, error)
	WriteBlob(ctx context.Context, data []byte) error
}

// Replica is a remote BlobStore that can report changes made elsewhere.
type Replica interface {
	BlobStore
	// Watch calls onChange for every change written by another instance
	// until ctx is done.
	Watch(ctx context.Context, onChange func()) error
}

// blobMover is implemented by blob stores that can move an unreadable
// document out of the way so a later write doesn't replace it.
type blobMover interface {
	MoveAside(ctx context.Context) (string, error)
}

// FileBlobStore keeps the document in a single file. Writes go to a temporary
// file in the same directory which is then renamed over the target, so readers
// see either the old or the new document, never a partial one.
type FileBlobStore struct {
	fs          afero.Fs
	path        string
	maxAttempts int
}

// NewFileBlobStore creates a file store for path on fs.
func NewFileBlobStore(fs afero.Fs, path string) *FileBlobStore {
	return &FileBlobStore{fs: fs, path: path, maxAttempts: 3}
}

// Path returns the file the document is stored in.
func (f *FileBlobStore) Path() string { return f.path }

func (f *FileBlobStore) ReadBlob(context.Context) ([]byte, error) {
	data, err := afero.ReadFile(f.fs, f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", f.path, err)
	}
	return data, nil
}

// MoveAside renames the document to a timestamped sibling and returns the new
// path.
func (f *FileBlobStore) MoveAside(context.Context) (string, error) {
	target := fmt.Sprintf("%s.unreadable-%s", f.path, time.Now().Format("20060102-150405"))
	if err := f.fs.Rename(f.path, target); err != nil {
		return "", fmt.Errorf("moving %s aside: %w", f.path, err)
	}
	return target, nil
}

func (f *FileBlobStore) WriteBlob(ctx context.Context, data []byte) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = 20 * time.Millisecond
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(f.maxAttempts-1)), ctx)

	return backoff.Retry(func() error { return f.writeAtomic(data) }, policy)
}

func (f *FileBlobStore) writeAtomic(data []byte) error {
	dir := filepath.Dir(f.path)
	if err := f.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmp, err := afero.TempFile(f.fs, dir, filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = f.fs.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := f.fs.Rename(tmpName, f.path); err != nil {
		cleanup()
		return fmt.Errorf("replacing %s: %w", f.path, err)
	}
	return nil
}

// Storage combines the local file with an optional replica. Local writes are
// authoritative; replica writes are best effort. Concurrent edits on two
// devices resolve as last writer wins.
type Storage struct {
	local   BlobStore
	replica Replica
	log     zerolog.Logger
}

// NewStorage creates the tiered storage. replica may be nil.
func NewStorage(local BlobStore, replica Replica, log zerolog.Logger) *Storage {
	return &Storage{
		local:   local,
		replica: replica,
		log:     log.With().Str("component", "storage").Logger(),
	}
}

// Load returns the first document accepted by accept, trying the replica
// first and then the local file. An accepted replica document is written back
// to the local file. Returns ErrBlobNotFound when neither tier has a usable
// document, including when the local copy can't be read.
func (s *Storage) Load(ctx context.Context, accept func([]byte) error) ([]byte, error) {
	if s.replica != nil {
		data, err := s.replica.ReadBlob(ctx)
		switch {
		case errors.Is(err, ErrBlobNotFound):
			s.log.Debug().Msg("replica is empty")
		case err != nil:
			s.log.Warn().Err(err).Msg("reading replica failed, using local copy")
		default:
			if err := accept(data); err != nil {
				s.log.Warn().Err(err).Msg("replica copy is corrupt, using local copy")
			} else {
				if err := s.local.WriteBlob(ctx, data); err != nil {
					s.log.Warn().Err(err).Msg("writing replica copy to local storage failed")
				}
				return data, nil
			}
		}
	}

	data, err := s.local.ReadBlob(ctx)
	if errors.Is(err, ErrBlobNotFound) {
		return nil, err
	}
	if err != nil {
		s.log.Error().Err(err).Msg("local copy is unreadable, starting from defaults")
		if sa, ok := s.local.(blobMover); ok {
			if moved, mvErr := sa.MoveAside(ctx); mvErr != nil {
				s.log.Warn().Err(mvErr).Msg("could not move the unreadable copy aside")
			} else {
				s.log.Warn().Str("path", moved).Msg("unreadable copy moved aside")
			}
		}
		return nil, ErrBlobNotFound
	}
	if err := accept(data); err != nil {
		s.log.Warn().Err(err).Msg("local copy is corrupt")
		return nil, ErrBlobNotFound
	}
	return data, nil
}

// LoadReplica returns the replica document, if it is accepted.
func (s *Storage) LoadReplica(ctx context.Context, accept func([]byte) error) ([]byte, error) {
	if s.replica == nil {
		return nil, ErrBlobNotFound
	}
	data, err := s.replica.ReadBlob(ctx)
	if err != nil {
		return nil, err
	}
	if err := accept(data); err != nil {
		return nil, fmt.Errorf("replica copy is corrupt: %w", err)
	}
	return data, nil
}

// Save writes data locally and mirrors it to the replica. Only the local
// write can fail the call.
func (s *Storage) Save(ctx context.Context, data []byte) error {
	if err := s.local.WriteBlob(ctx, data); err != nil {
		return err
	}
	if s.replica != nil {
		if err := s.replica.WriteBlob(ctx, data); err != nil {
			s.log.Warn().Err(err).Msg("mirroring to replica failed")
		}
	}
	return nil
}

// SaveLocal writes data to the local file only.
func (s *Storage) SaveLocal(ctx context.Context, data []byte) error {
	return s.local.WriteBlob(ctx, data)
}

// Watch blocks until ctx is done, calling onChange when the replica reports a
// change from another instance. Without a replica it just waits.
func (s *Storage) Watch(ctx context.Context, onChange func()) error {
	if s.replica == nil {
		<-ctx.Done()
		return nil
	}
	return s.replica.Watch(ctx, onChange)
}
