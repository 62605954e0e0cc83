package storefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/goliatone/go-pdfgen/pdfgen"
)

const metaSuffix = ".meta.json"

// Store keeps generated documents as flat files under Root. Each artifact has
// a JSON sidecar carrying its metadata, including the expiry used by the
// sweeper.
type Store struct {
	Root string
	Now  func() time.Time
}

// NewStore creates a filesystem-backed artifact store. The root directory is
// created on first write.
func NewStore(root string) *Store {
	return &Store{Root: root, Now: time.Now}
}

// Put writes the artifact through a temp file and renames it into place.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, meta pdfgen.ArtifactMeta) (pdfgen.ArtifactRef, error) {
	if err := s.check(ctx); err != nil {
		return pdfgen.ArtifactRef{}, err
	}
	pathOnDisk, err := s.resolvePath(key)
	if err != nil {
		return pdfgen.ArtifactRef{}, err
	}

	dir := filepath.Dir(pathOnDisk)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return pdfgen.ArtifactRef{}, pdfgen.NewError(pdfgen.KindStorage, "create store root", err)
	}

	tmp, err := os.CreateTemp(dir, ".pdfgen-*")
	if err != nil {
		return pdfgen.ArtifactRef{}, err
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	size, err := io.Copy(tmp, r)
	if err != nil {
		return pdfgen.ArtifactRef{}, err
	}
	if err := tmp.Sync(); err != nil {
		return pdfgen.ArtifactRef{}, err
	}
	if err := tmp.Close(); err != nil {
		return pdfgen.ArtifactRef{}, err
	}

	meta.Size = size
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = s.now()
	}
	if meta.ContentType == "" {
		meta.ContentType = mime.TypeByExtension(filepath.Ext(pathOnDisk))
	}
	if meta.Filename == "" {
		meta.Filename = key
	}

	// Sidecar first: a visible artifact always has its expiry on disk.
	if err := s.writeMeta(pathOnDisk, meta); err != nil {
		return pdfgen.ArtifactRef{}, err
	}
	if err := os.Rename(tmp.Name(), pathOnDisk); err != nil {
		_ = os.Remove(metaPath(pathOnDisk))
		return pdfgen.ArtifactRef{}, err
	}

	return pdfgen.ArtifactRef{Key: key, Meta: meta}, nil
}

// Open reads an artifact from disk.
func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, pdfgen.ArtifactMeta, error) {
	if err := s.check(ctx); err != nil {
		return nil, pdfgen.ArtifactMeta{}, err
	}
	pathOnDisk, err := s.resolvePath(key)
	if err != nil {
		return nil, pdfgen.ArtifactMeta{}, err
	}

	file, err := os.Open(pathOnDisk)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, pdfgen.ArtifactMeta{}, pdfgen.NewError(pdfgen.KindNotFound, fmt.Sprintf("artifact %q not found", key), err)
		}
		return nil, pdfgen.ArtifactMeta{}, err
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, pdfgen.ArtifactMeta{}, err
	}
	return file, s.metaFor(pathOnDisk, info), nil
}

// Delete removes an artifact and its sidecar. Missing files are not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	pathOnDisk, err := s.resolvePath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(pathOnDisk); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.Remove(metaPath(pathOnDisk)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// List returns the artifacts in Root ordered by key. Temp files and sidecars
// are skipped. A missing root yields an empty list.
func (s *Store) List(ctx context.Context) ([]pdfgen.ArtifactRef, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	root, err := filepath.Abs(s.Root)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	refs := make([]pdfgen.ArtifactRef, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || strings.HasSuffix(name, metaSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		refs = append(refs, pdfgen.ArtifactRef{
			Key:  name,
			Meta: s.metaFor(filepath.Join(root, name), info),
		})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Key < refs[j].Key })
	return refs, nil
}

func (s *Store) check(ctx context.Context) error {
	if s == nil {
		return pdfgen.NewError(pdfgen.KindInternal, "store is nil", nil)
	}
	if s.Root == "" {
		return pdfgen.NewError(pdfgen.KindValidation, "store root is required", nil)
	}
	if ctx != nil {
		return ctx.Err()
	}
	return nil
}

// resolvePath maps a flat key to a file under Root.
func (s *Store) resolvePath(key string) (string, error) {
	if key == "" {
		return "", pdfgen.NewError(pdfgen.KindValidation, "artifact key is required", nil)
	}
	if strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".") || strings.HasSuffix(key, metaSuffix) {
		return "", pdfgen.NewError(pdfgen.KindValidation, fmt.Sprintf("invalid artifact key %q", key), nil)
	}

	root, err := filepath.Abs(s.Root)
	if err != nil {
		return "", err
	}
	target := filepath.Join(root, key)
	if filepath.Dir(target) != root {
		return "", pdfgen.NewError(pdfgen.KindValidation, "artifact key escapes root", nil)
	}
	return target, nil
}

func (s *Store) metaFor(pathOnDisk string, info fs.FileInfo) pdfgen.ArtifactMeta {
	meta := s.readMeta(pathOnDisk)
	if meta.ContentType == "" {
		meta.ContentType = mime.TypeByExtension(filepath.Ext(pathOnDisk))
	}
	if meta.Filename == "" {
		meta.Filename = filepath.Base(pathOnDisk)
	}
	if info != nil {
		meta.Size = info.Size()
		if meta.CreatedAt.IsZero() {
			meta.CreatedAt = info.ModTime()
		}
	}
	return meta
}

func (s *Store) writeMeta(pathOnDisk string, meta pdfgen.ArtifactMeta) error {
	payload, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	dir := filepath.Dir(pathOnDisk)
	tmp, err := os.CreateTemp(dir, ".meta-*")
	if err != nil {
		return err
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()
	if _, err := tmp.Write(payload); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), metaPath(pathOnDisk))
}

func (s *Store) readMeta(pathOnDisk string) pdfgen.ArtifactMeta {
	data, err := os.ReadFile(metaPath(pathOnDisk))
	if err != nil {
		return pdfgen.ArtifactMeta{}
	}
	var meta pdfgen.ArtifactMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return pdfgen.ArtifactMeta{}
	}
	return meta
}

func (s *Store) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func metaPath(pathOnDisk string) string {
	return pathOnDisk + metaSuffix
}
