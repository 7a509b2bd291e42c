package drivers

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"crosscopy/internal/supervise"
)

// CsvStream is one named, independently movable partition of a table's data,
// carried as raw CSV bytes with a header row. The byte stream is opened
// lazily and consumed at most once, start to end.
//
// Within one transfer, stream names are unique, stable, and filesystem- and
// URL-safe: they are derived from relative paths with the extension stripped,
// or a fixed literal for single-stream cases.
type CsvStream struct {
	Name string
	Open func(ctx context.Context) (io.ReadCloser, error)
}

// streamName derives a partition name from filePath relative to basePath,
// with the extension stripped and separators normalized to "/".
func streamName(basePath, filePath string) (string, error) {
	rel, err := filepath.Rel(filepath.Clean(basePath), filepath.Clean(filePath))
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%s is not inside %s", filePath, basePath)
	}
	name := filepath.ToSlash(rel)
	if name == "." {
		// basePath names the file itself; fall back to its stem.
		name = path.Base(filepath.ToSlash(filePath))
	}
	name = strings.TrimSuffix(name, path.Ext(name))
	if name == "" {
		return "", fmt.Errorf("cannot derive a stream name from %s", filePath)
	}
	return name, nil
}

// objectStreamName derives a partition name from an object key relative to
// the listing prefix, with the extension stripped.
func objectStreamName(prefix, key string) (string, error) {
	rel, ok := strings.CutPrefix(key, prefix)
	if !ok || rel == "" {
		return "", fmt.Errorf("object %q is not under prefix %q", key, prefix)
	}
	name := strings.TrimSuffix(rel, path.Ext(rel))
	if name == "" {
		return "", fmt.Errorf("cannot derive a stream name from object %q", key)
	}
	return name, nil
}

// concatenateCsvStreams merges the partitions into one ordered stream named
// "combined", keeping the first partition's header row and skipping the
// header of every subsequent partition.
func concatenateCsvStreams(sctx *supervise.Context, streams []CsvStream) CsvStream {
	return CsvStream{
		Name: "combined",
		Open: func(ctx context.Context) (io.ReadCloser, error) {
			sctx.Logger().Debug("concatenating csv streams", "count", len(streams))
			return &concatReader{ctx: ctx, streams: streams}, nil
		},
	}
}

// concatReader reads the underlying streams in order, opening each lazily
// and discarding the header line of every stream after the first.
type concatReader struct {
	ctx     context.Context
	streams []CsvStream
	next    int
	cur     *bufio.Reader
	curC    io.Closer
}

func (r *concatReader) Read(p []byte) (int, error) {
	for {
		if r.cur == nil {
			if r.next >= len(r.streams) {
				return 0, io.EOF
			}
			stream := r.streams[r.next]
			rc, err := stream.Open(r.ctx)
			if err != nil {
				return 0, fmt.Errorf("cannot open stream %s: %w", stream.Name, err)
			}
			r.cur = bufio.NewReader(rc)
			r.curC = rc
			if r.next > 0 {
				if err := skipHeaderLine(r.cur); err != nil {
					name := stream.Name
					r.closeCurrent()
					return 0, fmt.Errorf("cannot skip header of stream %s: %w", name, err)
				}
			}
			r.next++
		}
		n, err := r.cur.Read(p)
		if err == io.EOF {
			if cerr := r.closeCurrent(); cerr != nil {
				return n, cerr
			}
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (r *concatReader) closeCurrent() error {
	err := r.curC.Close()
	r.cur = nil
	r.curC = nil
	return err
}

func (r *concatReader) Close() error {
	if r.curC != nil {
		return r.closeCurrent()
	}
	return nil
}

// skipHeaderLine consumes bytes through the first newline. A stream with no
// newline at all is treated as header-only and skipped entirely.
func skipHeaderLine(r *bufio.Reader) error {
	_, err := r.ReadString('\n')
	if err == io.EOF {
		return nil
	}
	return err
}
