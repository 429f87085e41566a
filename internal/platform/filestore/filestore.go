// Package filestore is where finished reports are handed over for download.
// It defines the Store interface, a thread-safe in-memory implementation for
// tests, and a directory-backed implementation used by the CLI.
package filestore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	ErrNotFound           = errors.New("file not found")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("content type is not allowed")
	ErrMissingFileName    = errors.New("file name is required")
	ErrInvalidFileName    = errors.New("file name must not contain a path")
)

// ---------------------------------------------------------------------------
// Validation constants
// ---------------------------------------------------------------------------

// MaxFileSize is the maximum allowed report size in bytes (50 MB).
const MaxFileSize = 50 * 1024 * 1024

const (
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	ContentTypePDF  = "application/pdf"
)

// AllowedContentTypes lists the report formats the store accepts.
var AllowedContentTypes = map[string]bool{
	ContentTypeXLSX: true,
	ContentTypePDF:  true,
}

// ---------------------------------------------------------------------------
// Domain types
// ---------------------------------------------------------------------------

// Metadata describes a stored report file.
type Metadata struct {
	ID          string            `json:"id"`
	FileName    string            `json:"file_name"`
	ContentType string            `json:"content_type"`
	Size        int64             `json:"size"`
	Hash        string            `json:"hash"`
	Path        string            `json:"path,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	Tags        map[string]string `json:"tags,omitempty"`
}

// Store is the contract for the report download collaborator.
type Store interface {
	Save(ctx context.Context, meta Metadata, content io.Reader) (*Metadata, error)
	Open(ctx context.Context, id string) (io.ReadCloser, *Metadata, error)
	Stat(ctx context.Context, id string) (*Metadata, error)
	List(ctx context.Context) ([]*Metadata, error)
	Delete(ctx context.Context, id string) error
}

// prepare validates meta, reads content and fills in the derived fields.
func prepare(meta Metadata, content io.Reader) (Metadata, []byte, error) {
	if meta.FileName == "" {
		return meta, nil, ErrMissingFileName
	}
	if filepath.Base(meta.FileName) != meta.FileName || strings.ContainsAny(meta.FileName, `/\`) {
		return meta, nil, ErrInvalidFileName
	}
	if !AllowedContentTypes[meta.ContentType] {
		return meta, nil, fmt.Errorf("%w: %s", ErrInvalidContentType, meta.ContentType)
	}

	data, err := io.ReadAll(io.LimitReader(content, MaxFileSize+1))
	if err != nil {
		return meta, nil, fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > MaxFileSize {
		return meta, nil, ErrFileTooLarge
	}

	h := sha256.Sum256(data)

	meta.ID = uuid.New().String()
	meta.Size = int64(len(data))
	meta.Hash = fmt.Sprintf("%x", h)
	meta.CreatedAt = time.Now().UTC()
	if meta.Tags == nil {
		meta.Tags = make(map[string]string)
	}
	return meta, data, nil
}

func sortByCreated(items []*Metadata) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].FileName < items[j].FileName
	})
}

// maxNameAttempts bounds the -N suffixes tried before giving up.
const maxNameAttempts = 1000

// candidateName returns name for attempt 0 and stem-N.ext after that.
func candidateName(name string, attempt int) string {
	if attempt == 0 {
		return name
	}
	ext := filepath.Ext(name)
	return fmt.Sprintf("%s-%d%s", strings.TrimSuffix(name, ext), attempt, ext)
}

func errNoFreeName(name string) error {
	return fmt.Errorf("no free file name for %s after %d attempts", name, maxNameAttempts)
}

// contentTypeFor maps a report file extension to its content type.
func contentTypeFor(name string) (string, bool) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx":
		return ContentTypeXLSX, true
	case ".pdf":
		return ContentTypePDF, true
	}
	return "", false
}

// ---------------------------------------------------------------------------
// In-memory implementation
// ---------------------------------------------------------------------------

type storedFile struct {
	metadata Metadata
	content  []byte
}

// MemoryStore is a thread-safe, in-memory Store. Like DirStore it never
// reuses a stored file name.
type MemoryStore struct {
	mu    sync.RWMutex
	files map[string]*storedFile
	names map[string]bool
}

// NewMemoryStore returns a ready-to-use MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		files: make(map[string]*storedFile),
		names: make(map[string]bool),
	}
}

// Save validates inputs, reads the content, computes a SHA-256 hash, and
// keeps the file in memory under the first free name.
func (s *MemoryStore) Save(_ context.Context, meta Metadata, content io.Reader) (*Metadata, error) {
	meta, data, err := prepare(meta, content)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := ""
	for i := 0; i < maxNameAttempts; i++ {
		if c := candidateName(meta.FileName, i); !s.names[c] {
			name = c
			break
		}
	}
	if name == "" {
		return nil, errNoFreeName(meta.FileName)
	}
	meta.FileName = name
	s.names[name] = true
	s.files[meta.ID] = &storedFile{metadata: meta, content: data}

	out := meta // copy
	return &out, nil
}

// Open returns a reader over the file content and its metadata.
func (s *MemoryStore) Open(_ context.Context, id string) (io.ReadCloser, *Metadata, error) {
	s.mu.RLock()
	f, ok := s.files[id]
	s.mu.RUnlock()

	if !ok {
		return nil, nil, ErrNotFound
	}

	meta := f.metadata // copy
	return io.NopCloser(bytes.NewReader(f.content)), &meta, nil
}

// Stat returns file metadata without content.
func (s *MemoryStore) Stat(_ context.Context, id string) (*Metadata, error) {
	s.mu.RLock()
	f, ok := s.files[id]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}

	meta := f.metadata // copy
	return &meta, nil
}

// List returns all stored files, oldest first.
func (s *MemoryStore) List(_ context.Context) ([]*Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Metadata, 0, len(s.files))
	for _, f := range s.files {
		m := f.metadata // copy
		out = append(out, &m)
	}
	sortByCreated(out)
	return out, nil
}

// Delete removes a file by ID.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.names, f.metadata.FileName)
	delete(s.files, id)
	return nil
}

// ---------------------------------------------------------------------------
// Directory implementation
// ---------------------------------------------------------------------------

// DirStore keeps reports as files in one directory. The file name is the ID,
// so reports written by earlier runs stay addressable. It never overwrites an
// existing file: when the name is taken it appends -1, -2, ... before the
// extension.
type DirStore struct {
	dir   string
	mu    sync.RWMutex
	index map[string]Metadata
}

// NewDirStore creates dir if needed, indexes the reports already in it and
// returns a store rooted there. Files that are not reports are ignored.
func NewDirStore(dir string) (*DirStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	s := &DirStore{dir: dir, index: make(map[string]Metadata)}
	if err := s.scan(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *DirStore) scan() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read output directory: %w", err)
	}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		contentType, ok := contentTypeFor(e.Name())
		if !ok {
			continue
		}
		path := filepath.Join(s.dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("index %s: %w", path, err)
		}
		info, err := e.Info()
		if err != nil {
			return fmt.Errorf("index %s: %w", path, err)
		}
		s.index[e.Name()] = Metadata{
			ID:          e.Name(),
			FileName:    e.Name(),
			ContentType: contentType,
			Size:        int64(len(data)),
			Hash:        fmt.Sprintf("%x", sha256.Sum256(data)),
			Path:        path,
			CreatedAt:   info.ModTime().UTC(),
			Tags:        map[string]string{},
		}
	}
	return nil
}

// Dir returns the directory the store writes into.
func (s *DirStore) Dir() string { return s.dir }

// Save writes the content to a new file in the store directory.
func (s *DirStore) Save(ctx context.Context, meta Metadata, content io.Reader) (*Metadata, error) {
	meta, data, err := prepare(meta, content)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, path, err := s.create(meta.FileName)
	if err != nil {
		return nil, err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("close %s: %w", path, err)
	}

	meta.Path = path
	meta.FileName = filepath.Base(path)
	meta.ID = meta.FileName
	s.index[meta.ID] = meta

	out := meta // copy
	return &out, nil
}

func (s *DirStore) create(name string) (*os.File, string, error) {
	for i := 0; i < maxNameAttempts; i++ {
		path := filepath.Join(s.dir, candidateName(name, i))
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, path, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", fmt.Errorf("create %s: %w", path, err)
		}
	}
	return nil, "", errNoFreeName(name)
}

// Open returns a reader over an indexed report.
func (s *DirStore) Open(_ context.Context, id string) (io.ReadCloser, *Metadata, error) {
	s.mu.RLock()
	meta, ok := s.index[id]
	s.mu.RUnlock()

	if !ok {
		return nil, nil, ErrNotFound
	}
	f, err := os.Open(meta.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("open %s: %w", meta.Path, err)
	}
	return f, &meta, nil
}

// Stat returns metadata for an indexed report.
func (s *DirStore) Stat(_ context.Context, id string) (*Metadata, error) {
	s.mu.RLock()
	meta, ok := s.index[id]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	return &meta, nil
}

// List returns the indexed reports, oldest first.
func (s *DirStore) List(_ context.Context) ([]*Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Metadata, 0, len(s.index))
	for _, m := range s.index {
		m := m
		out = append(out, &m)
	}
	sortByCreated(out)
	return out, nil
}

// Delete removes an indexed report from disk.
func (s *DirStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, ok := s.index[id]
	if !ok {
		return ErrNotFound
	}
	if err := os.Remove(meta.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", meta.Path, err)
	}
	delete(s.index, id)
	return nil
}
