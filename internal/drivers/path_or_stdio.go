package drivers

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// pathOrStdio is the location of a file-shaped locator: either a filesystem
// path or the process's standard input/output, written as "-".
type pathOrStdio struct {
	path  string // empty when stdio is true
	stdio bool
}

// parsePathOrStdio strips the scheme prefix and interprets the remainder.
func parsePathOrStdio(scheme, s string) (pathOrStdio, error) {
	rest, ok := strings.CutPrefix(s, scheme)
	if !ok {
		return pathOrStdio{}, fmt.Errorf("expected %q to begin with %q", s, scheme)
	}
	if rest == "-" {
		return pathOrStdio{stdio: true}, nil
	}
	if rest == "" {
		return pathOrStdio{}, fmt.Errorf("%s locator has an empty path", scheme)
	}
	return pathOrStdio{path: rest}, nil
}

func (p pathOrStdio) locatorString(scheme string) string {
	if p.stdio {
		return scheme + "-"
	}
	return scheme + p.path
}

// isDir reports whether the location names a directory of partitions, marked
// by a trailing path separator.
func (p pathOrStdio) isDir() bool {
	return !p.stdio && strings.HasSuffix(p.path, "/")
}

// openRead opens the location for reading; standard input is returned behind
// a no-op closer so callers can treat every source uniformly.
func (p pathOrStdio) openRead() (io.ReadCloser, error) {
	if p.stdio {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(p.path)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", p.path, err)
	}
	return f, nil
}
