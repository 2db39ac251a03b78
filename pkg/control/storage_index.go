package control

import (
	"context"
	"log/slog"
	"time"

	"github.com/warpdrive/filterlog/pkg/backend"
)

// BackendStats summarizes a single backend.
type BackendStats struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	FileCount  int64  `json:"file_count,omitempty"`
	TotalBytes int64  `json:"total_bytes,omitempty"`
}

// backendStats describes every registered backend, sorted by name. With walk
// set each backend is listed recursively to count its files and bytes.
func (s *Server) backendStats(ctx context.Context, walk bool) ([]BackendStats, error) {
	all := s.backends.Backends()
	stats := make([]BackendStats, 0, len(all))
	for _, b := range all {
		name := b.Name()
		st := BackendStats{Name: name, Type: b.Type()}
		if walk {
			start := time.Now()
			if err := crawlBackend(ctx, b, "", &st); err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				slog.Error("backend walk failed", "component", "control", "backend", name, "error", err)
				return nil, err
			}
			slog.Debug("backend walk complete", "component", "control", "backend", name,
				"files", st.FileCount, "duration", time.Since(start))
		}
		stats = append(stats, st)
	}
	return stats, nil
}

// crawlBackend recursively lists prefix and adds its files to st.
func crawlBackend(ctx context.Context, b backend.Backend, prefix string, st *BackendStats) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	objects, err := b.List(ctx, prefix)
	if err != nil {
		return err
	}

	for _, obj := range objects {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		path := obj.Name
		if prefix != "" {
			path = prefix + "/" + path
		}

		if obj.IsDir {
			if err := crawlBackend(ctx, b, path, st); err != nil {
				slog.Warn("walk subdir failed", "backend", b.Name(), "path", path, "error", err)
				continue
			}
		} else {
			st.FileCount++
			st.TotalBytes += obj.Size
		}
	}
	return nil
}
