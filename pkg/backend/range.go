package backend

import (
	"fmt"
	"strconv"
	"strings"
)

// Range is an inclusive byte range of an object.
type Range struct {
	Start, End int64
}

// Len is the number of bytes in r.
func (r Range) Len() int64 { return r.End - r.Start + 1 }

// ContentRange formats r as a Content-Range header value for an object of
// the given size.
func (r Range) ContentRange(size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, size)
}

// ParseRange resolves a single "bytes=" range against an object of the given
// size. It returns nil when the header is absent, malformed or names several
// ranges; those requests get the whole object. A range that cannot be
// satisfied returns an error wrapping ErrUnsatisfiable.
func ParseRange(h string, size int64) (*Range, error) {
	spec, ok := strings.CutPrefix(strings.TrimSpace(h), "bytes=")
	if !ok || strings.Contains(spec, ",") {
		return nil, nil
	}
	first, last, ok := strings.Cut(spec, "-")
	if !ok {
		return nil, nil
	}
	first, last = strings.TrimSpace(first), strings.TrimSpace(last)

	if first == "" {
		if last == "" {
			return nil, nil
		}
		// Suffix range: the final n bytes.
		n, err := strconv.ParseInt(last, 10, 64)
		if err != nil || n < 0 {
			return nil, nil
		}
		if n == 0 || size == 0 {
			return nil, fmt.Errorf("suffix %d of %d bytes: %w", n, size, ErrUnsatisfiable)
		}
		n = min(n, size)
		return &Range{Start: size - n, End: size - 1}, nil
	}

	start, err := strconv.ParseInt(first, 10, 64)
	if err != nil || start < 0 {
		return nil, nil
	}
	end := size - 1
	if last != "" {
		end, err = strconv.ParseInt(last, 10, 64)
		if err != nil || end < start {
			return nil, nil
		}
		end = min(end, size-1)
	}
	if start >= size {
		return nil, fmt.Errorf("start %d of %d bytes: %w", start, size, ErrUnsatisfiable)
	}
	return &Range{Start: start, End: end}, nil
}
