// Package backend serves read-only objects from rclone remotes to the /files
// routes. Paths are resolved to entries, directories are listed and objects
// are read whole or by a single byte range. Failures are reported as one of
// the package's error kinds so callers can map them without knowing which
// remote produced them.
package backend

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned when a backend, object or directory does not
	// exist.
	ErrNotFound = errors.New("not found")

	// ErrNotDir is returned when listing a path that names an object.
	ErrNotDir = fmt.Errorf("not a directory: %w", ErrNotFound)

	// ErrIsDir is returned when reading a path that names a directory.
	ErrIsDir = fmt.Errorf("is a directory: %w", ErrNotFound)

	// ErrUnsatisfiable is returned when a byte range starts past the end of
	// the object.
	ErrUnsatisfiable = errors.New("range not satisfiable")
)

// Entry is one object or directory on a backend.
type Entry struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
	ETag    string    `json:"etag,omitempty"`
	IsDir   bool      `json:"is_dir"`
}

// Backend is a read-only view of a remote. Paths are slash separated and
// relative to the backend root; "" is the root.
type Backend interface {
	Name() string
	Type() string

	// Stat resolves path to an entry.
	Stat(ctx context.Context, path string) (Entry, error)

	// List returns the direct children of dir. Entry names are relative to
	// dir.
	List(ctx context.Context, dir string) ([]Entry, error)

	// Read returns up to length bytes of the object at path starting at off.
	// A negative length reads to the end.
	Read(ctx context.Context, path string, off, length int64) ([]byte, error)

	Close() error
}

// Object is an object read by Fetch.
type Object struct {
	Entry
	Body []byte

	// Range is the part of the object in Body, nil when Body holds all of it.
	Range *Range
}

// Fetch reads the object at path from b. rangeHeader is an HTTP Range value;
// a single satisfiable range reads only that part of the object.
func Fetch(ctx context.Context, b Backend, path, rangeHeader string) (*Object, error) {
	if cleanPath(path) == "" {
		return nil, fmt.Errorf("backend %s: Fetch root: %w", b.Name(), ErrIsDir)
	}
	e, err := b.Stat(ctx, path)
	if err != nil {
		return nil, err
	}
	if e.IsDir {
		return nil, fmt.Errorf("backend %s: Fetch %q: %w", b.Name(), path, ErrIsDir)
	}

	rng, err := ParseRange(rangeHeader, e.Size)
	if err != nil {
		return nil, fmt.Errorf("backend %s: Fetch %q: %w", b.Name(), path, err)
	}
	off, length := int64(0), int64(-1)
	if rng != nil {
		off, length = rng.Start, rng.Len()
	}
	body, err := b.Read(ctx, path, off, length)
	if err != nil {
		return nil, err
	}
	return &Object{Entry: e, Body: body, Range: rng}, nil
}

// cleanPath normalizes p to a root-relative path with no leading or trailing
// slash. Parent references cannot climb above the root.
func cleanPath(p string) string {
	return strings.Trim(path.Clean("/"+p), "/")
}

// Registry manages named backends.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
}

// NewRegistry creates an empty backend registry.
func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]Backend)}
}

// Register adds b under its Name.
func (r *Registry) Register(b Backend) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := b.Name()
	if _, exists := r.backends[name]; exists {
		return fmt.Errorf("backend.Registry: backend %q already registered", name)
	}
	r.backends[name] = b
	return nil
}

// Get returns the backend registered under name.
func (r *Registry) Get(name string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[name]
	if !ok {
		return nil, fmt.Errorf("backend.Registry: backend %q: %w", name, ErrNotFound)
	}
	return b, nil
}

// Backends returns every registered backend, sorted by name.
func (r *Registry) Backends() []Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]Backend, 0, len(r.backends))
	for _, b := range r.backends {
		all = append(all, b)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name() < all[j].Name() })
	return all
}

// Close closes all registered backends.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for name, b := range r.backends {
		if err := b.Close(); err != nil {
			errs = append(errs, fmt.Errorf("backend %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
