package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"time"

	"github.com/warpdrive/filterlog/pkg/metrics"

	// Register rclone backends via blank imports.
	_ "github.com/rclone/rclone/backend/azureblob"
	_ "github.com/rclone/rclone/backend/googlecloudstorage"
	_ "github.com/rclone/rclone/backend/local"
	_ "github.com/rclone/rclone/backend/s3"
	_ "github.com/rclone/rclone/backend/sftp"

	"github.com/rclone/rclone/fs"
	"github.com/rclone/rclone/fs/config/configmap"
	"github.com/rclone/rclone/fs/hash"
)

// RcloneBackend serves a read-only view of an rclone remote.
type RcloneBackend struct {
	name     string
	backType string
	rfs      fs.Fs
}

// NewRcloneBackend opens the rclone remote of type backendType (e.g. "s3",
// "local") rooted at root. params holds rclone config keys.
func NewRcloneBackend(name, backendType, root string, params map[string]string) (*RcloneBackend, error) {
	regInfo, err := fs.Find(backendType)
	if err != nil {
		return nil, fmt.Errorf("backend.NewRcloneBackend: unknown type %q: %w", backendType, err)
	}
	rfs, err := regInfo.NewFs(context.Background(), name, root, configmap.Simple(params))
	if err != nil {
		return nil, fmt.Errorf("backend.NewRcloneBackend: open %q (%s): %w", name, backendType, err)
	}

	slog.Info("backend opened", "component", "backend", "name", name, "type", backendType, "root", root)
	return &RcloneBackend{name: name, backType: backendType, rfs: rfs}, nil
}

func (b *RcloneBackend) Name() string { return b.name }
func (b *RcloneBackend) Type() string { return b.backType }

// Stat resolves p to an object or directory entry. Objects carry an MD5
// ETag when the remote supports it.
func (b *RcloneBackend) Stat(ctx context.Context, p string) (e Entry, err error) {
	defer b.observe("stat", time.Now(), &err)

	p = cleanPath(p)
	if p == "" {
		return Entry{IsDir: true}, nil
	}
	obj, err := b.rfs.NewObject(ctx, p)
	switch {
	case err == nil:
		e = entryOf(ctx, obj)
		if h, herr := obj.Hash(ctx, hash.MD5); herr == nil {
			e.ETag = h
		}
		return e, nil
	case errors.Is(err, fs.ErrorIsDir), errors.Is(err, fs.ErrorNotAFile):
		return Entry{Name: path.Base(p), IsDir: true}, nil
	case errors.Is(err, fs.ErrorObjectNotFound):
		// Object stores have no directory markers; a prefix with children
		// is a directory.
		if children, lerr := b.rfs.List(ctx, p); lerr == nil && len(children) > 0 {
			return Entry{Name: path.Base(p), IsDir: true}, nil
		}
		return Entry{}, b.wrap("Stat", p, ErrNotFound)
	}
	return Entry{}, b.wrap("Stat", p, err)
}

// List returns the children of dir. Listing an object fails with ErrNotDir.
func (b *RcloneBackend) List(ctx context.Context, dir string) (entries []Entry, err error) {
	defer b.observe("list", time.Now(), &err)

	dir = cleanPath(dir)
	children, err := b.rfs.List(ctx, dir)
	if err != nil {
		// Remotes report listing an object differently; ask directly.
		if dir != "" && b.isObject(ctx, dir) {
			return nil, b.wrap("List", dir, ErrNotDir)
		}
		if errors.Is(err, fs.ErrorDirNotFound) {
			return nil, b.wrap("List", dir, ErrNotFound)
		}
		return nil, b.wrap("List", dir, err)
	}

	entries = make([]Entry, 0, len(children))
	for _, child := range children {
		switch c := child.(type) {
		case fs.Object:
			entries = append(entries, entryOf(ctx, c))
		case fs.Directory:
			entries = append(entries, Entry{
				Name:    path.Base(c.Remote()),
				Size:    max(c.Size(), 0),
				ModTime: c.ModTime(ctx),
				IsDir:   true,
			})
		}
	}
	return entries, nil
}

// Read returns up to length bytes of the object at p starting at off. A
// negative length reads to the end. off at or past the end of a non-empty
// object fails with ErrUnsatisfiable.
func (b *RcloneBackend) Read(ctx context.Context, p string, off, length int64) (data []byte, err error) {
	defer b.observe("read", time.Now(), &err)

	p = cleanPath(p)
	obj, err := b.rfs.NewObject(ctx, p)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrorIsDir), errors.Is(err, fs.ErrorNotAFile):
		return nil, b.wrap("Read", p, ErrIsDir)
	case errors.Is(err, fs.ErrorObjectNotFound):
		return nil, b.wrap("Read", p, ErrNotFound)
	default:
		return nil, b.wrap("Read", p, err)
	}

	if size := obj.Size(); off < 0 || (off > 0 && size >= 0 && off >= size) {
		return nil, b.wrap("Read", p, fmt.Errorf("offset %d of %d bytes: %w", off, size, ErrUnsatisfiable))
	}
	if length == 0 {
		return []byte{}, nil
	}

	var opts []fs.OpenOption
	if off > 0 || length > 0 {
		end := int64(-1)
		if length > 0 {
			end = off + length - 1
		}
		opts = append(opts, &fs.RangeOption{Start: off, End: end})
	}
	rc, err := obj.Open(ctx, opts...)
	if err != nil {
		return nil, b.wrap("Read", p, err)
	}
	defer rc.Close()

	var r io.Reader = rc
	if length > 0 {
		r = io.LimitReader(rc, length)
	}
	data, err = io.ReadAll(r)
	metrics.BackendBytesRead.WithLabelValues(b.name).Add(float64(len(data)))
	if err != nil {
		return nil, b.wrap("Read", p, err)
	}
	return data, nil
}

func (b *RcloneBackend) Close() error {
	slog.Debug("backend closed", "component", "backend", "name", b.name)
	return nil
}

func (b *RcloneBackend) isObject(ctx context.Context, p string) bool {
	_, err := b.rfs.NewObject(ctx, p)
	return err == nil
}

func (b *RcloneBackend) wrap(op, p string, err error) error {
	return fmt.Errorf("backend %s: %s %q: %w", b.name, op, p, err)
}

// observe records the duration of op. Only remote failures count as backend
// errors; missing paths, bad ranges and cancellation are the caller's.
func (b *RcloneBackend) observe(op string, start time.Time, errp *error) {
	metrics.BackendRequestDuration.WithLabelValues(b.name, op).Observe(time.Since(start).Seconds())
	if IsRemoteError(*errp) {
		metrics.BackendErrors.WithLabelValues(b.name, op).Inc()
	}
}

// IsRemoteError reports whether err is a failure of the remote itself rather
// than a missing path, an unsatisfiable range or a cancelled context.
func IsRemoteError(err error) bool {
	switch {
	case err == nil,
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrUnsatisfiable),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

func entryOf(ctx context.Context, obj fs.Object) Entry {
	return Entry{
		Name:    path.Base(obj.Remote()),
		Size:    obj.Size(),
		ModTime: obj.ModTime(ctx),
	}
}
