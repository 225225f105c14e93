package store

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// FileStore is a directory-backed Store. Manifest writes go through
// write-temp, fsync, rename so a reader never observes a partially written
// manifest, even across a crash.
type FileStore struct {
	root string
}

// NewFileStore returns a FileStore rooted at dir. dir is created if absent.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileStore{root: dir}, nil
}

func (f *FileStore) roundDir(h Handle) string {
	return filepath.Join(f.root, "rounds", h.RoundID)
}

func (f *FileStore) NewRound(ctx context.Context) (Handle, error) {
	raw := uuid.New()
	id := hex.EncodeToString(raw[:])
	h := Handle{RoundID: id}
	if err := os.MkdirAll(f.roundDir(h), 0o755); err != nil {
		return Handle{}, err
	}
	return h, nil
}

func (f *FileStore) PutBlob(ctx context.Context, h Handle, key string, data []byte) error {
	path := filepath.Join(f.roundDir(h), key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return atomicWrite(path, data)
}

func (f *FileStore) PutJSON(ctx context.Context, h Handle, key string, obj any) error {
	data, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return err
	}
	return f.PutBlob(ctx, h, key, data)
}

func (f *FileStore) GetBlob(ctx context.Context, h Handle, key string) ([]byte, error) {
	path := filepath.Join(f.roundDir(h), key)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

func (f *FileStore) GetJSON(ctx context.Context, h Handle, key string, out any) error {
	data, err := f.GetBlob(ctx, h, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (f *FileStore) ListRounds(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(f.root, "rounds"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

func (f *FileStore) CommitManifest(ctx context.Context, h Handle, obj any) error {
	return f.PutJSON(ctx, h, "manifest.json", obj)
}

// atomicWrite writes data to a temp file in path's directory, fsyncs it,
// then renames it over path. A reader can never observe a half-written
// file at path.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
