package drivers

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"crosscopy/internal/schema"
	"crosscopy/internal/supervise"
)

// csvScheme is the locator scheme for CSV files and directories.
const csvScheme = "csv:"

// copyBufferSize is used when pumping partition bytes between endpoints.
const copyBufferSize = 64 * 1024

// errCSVSchemaFromStdin is returned when reading a schema from standard
// input, which would require buffering the input before a second pass.
var errCSVSchemaFromStdin = errors.New("cannot yet read CSV schema from standard input")

// CSVLocator is a CSV file containing data, a directory of CSV files
// (trailing separator), or standard input/output ("csv:-").
type CSVLocator struct {
	path pathOrStdio
}

var (
	_ SchemaReader = (*CSVLocator)(nil)
	_ DataSource   = (*CSVLocator)(nil)
	_ DataSink     = (*CSVLocator)(nil)
)

func parseCSVLocator(s string) (*CSVLocator, error) {
	p, err := parsePathOrStdio(csvScheme, s)
	if err != nil {
		return nil, err
	}
	return &CSVLocator{path: p}, nil
}

func (l *CSVLocator) String() string { return l.path.locatorString(csvScheme) }

func (l *CSVLocator) Scheme() string { return csvScheme }

func (l *CSVLocator) Features() Features { return csvFeatures() }

func csvFeatures() Features {
	return Features{
		Locator:      FeatureSchema | FeatureLocalData | FeatureWriteLocalData,
		DestIfExists: IfExistsFeatureError | IfExistsFeatureOverwrite | IfExistsFeatureAppend,
	}
}

// Schema reads the header row of a single CSV file. CSV carries no type
// information, so every column comes back as nullable text.
func (l *CSVLocator) Schema(sctx *supervise.Context) (*schema.Table, error) {
	if l.path.stdio {
		return nil, errCSVSchemaFromStdin
	}
	f, err := os.Open(l.path.path)
	if err != nil {
		return nil, fmt.Errorf("error opening %s: %w", l.path.path, err)
	}
	defer f.Close()

	headers, err := csv.NewReader(bufio.NewReader(f)).Read()
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", l.path.path, err)
	}
	columns := make([]schema.Column, 0, len(headers))
	for _, name := range headers {
		columns = append(columns, schema.Column{
			Name:       name,
			DataType:   schema.Text,
			IsNullable: true,
		})
	}

	name := strings.TrimSuffix(filepath.Base(l.path.path), filepath.Ext(l.path.path))
	if name == "" {
		name = "data"
	}
	return &schema.Table{Name: name, Columns: columns}, nil
}

// LocalData produces one partition per CSV file. For standard input there is
// exactly one partition named "data"; for a path, the directory tree is
// walked and each *.csv / *.CSV file becomes a partition named by its
// relative path with the extension stripped.
func (l *CSVLocator) LocalData(sctx *supervise.Context, args SourceArgs) ([]CsvStream, error) {
	if err := args.Query.CheckUnsupported(csvScheme); err != nil {
		return nil, err
	}
	if err := args.Args.CheckUnsupported(csvScheme); err != nil {
		return nil, err
	}

	if l.path.stdio {
		return []CsvStream{{
			Name: "data",
			Open: func(context.Context) (io.ReadCloser, error) {
				return io.NopCloser(bufio.NewReaderSize(os.Stdin, copyBufferSize)), nil
			},
		}}, nil
	}

	base := l.path.path
	sctx.Logger().Debug("walking", "path", base)
	paths, err := findCSVFiles(sctx, base)
	if err != nil {
		return nil, err
	}

	streams := make([]CsvStream, 0, len(paths))
	for _, filePath := range paths {
		name, err := streamName(base, filePath)
		if err != nil {
			return nil, err
		}
		streams = append(streams, CsvStream{
			Name: name,
			Open: func(context.Context) (io.ReadCloser, error) {
				f, err := os.Open(filePath)
				if err != nil {
					return nil, fmt.Errorf("cannot open %s: %w", filePath, err)
				}
				return f, nil
			},
		})
	}
	return streams, nil
}

// findCSVFiles walks base with an explicit stack (no recursion), following
// symbolic links. Directories are traversed but never become partitions; any
// regular file that is not *.csv or *.CSV is a structural error.
func findCSVFiles(sctx *supervise.Context, base string) ([]string, error) {
	var found []string
	stack := []string{base}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		// os.Stat follows symbolic links.
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("error listing files in %s: %w", base, err)
		}
		sctx.Logger().Debug("found dirent", "path", p)
		switch {
		case info.IsDir():
			entries, err := os.ReadDir(p)
			if err != nil {
				return nil, fmt.Errorf("error listing files in %s: %w", p, err)
			}
			// Push in reverse so the stack pops entries in name order.
			for i := len(entries) - 1; i >= 0; i-- {
				stack = append(stack, filepath.Join(p, entries[i].Name()))
			}
		case info.Mode().IsRegular():
			ext := filepath.Ext(p)
			if ext != ".csv" && ext != ".CSV" {
				return nil, fmt.Errorf("%s must end in *.csv or *.CSV", p)
			}
			found = append(found, p)
		default:
			return nil, fmt.Errorf("not a file: %s", p)
		}
	}
	sort.Strings(found)
	return found, nil
}

// WriteLocalData persists the incoming partitions. A trailing separator
// marks a directory destination, giving each partition its own file; a plain
// path or standard output receives all partitions concatenated under a
// single header.
func (l *CSVLocator) WriteLocalData(sctx *supervise.Context, data []CsvStream, args DestArgs) ([]Completion, error) {
	if err := args.Args.CheckUnsupported(csvScheme); err != nil {
		return nil, err
	}

	switch {
	case l.path.stdio:
		if args.IfExists != IfExistsError {
			sctx.Logger().Warn("if-exists is ignored when writing to standard output")
		}
		combined := concatenateCsvStreams(sctx, data)
		return []Completion{func() error {
			if err := copyStreamTo(sctx, combined, os.Stdout); err != nil {
				return fmt.Errorf("error writing to standard output: %w", err)
			}
			return nil
		}}, nil

	case l.path.isDir():
		dir := l.path.path
		completions := make([]Completion, 0, len(data))
		for _, stream := range data {
			completions = append(completions, func() error {
				dest, err := safeJoin(dir, stream.Name+".csv")
				if err != nil {
					return err
				}
				child := sctx.Child("stream", stream.Name, "path", dest)
				return writeStreamToFile(child, stream, dest, args.IfExists)
			})
		}
		return completions, nil

	default:
		dest := l.path.path
		combined := concatenateCsvStreams(sctx, data)
		return []Completion{func() error {
			child := sctx.Child("stream", combined.Name, "path", dest)
			return writeStreamToFile(child, combined, dest, args.IfExists)
		}}, nil
	}
}

// safeJoin joins a partition name under dir, rejecting names that would
// escape it.
func safeJoin(dir, name string) (string, error) {
	joined := filepath.Join(dir, filepath.FromSlash(name))
	rel, err := filepath.Rel(filepath.Clean(dir), joined)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("stream name %q escapes destination directory %s", name, dir)
	}
	return joined, nil
}

// writeStreamToFile writes one partition to dest, creating parent
// directories as needed and honoring ifExists.
func writeStreamToFile(sctx *supervise.Context, stream CsvStream, dest string, ifExists IfExists) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("unable to create directory %s: %w", dir, err)
	}

	flags, err := ifExists.OpenFlags()
	if err != nil {
		return err
	}
	sctx.Logger().Debug("writing stream to file", "path", dest)
	f, err := os.OpenFile(dest, flags, 0o644)
	if err != nil {
		return fmt.Errorf("cannot open %s: %w", dest, err)
	}
	if err := copyStreamTo(sctx, stream, f); err != nil {
		f.Close()
		return fmt.Errorf("error writing %s: %w", dest, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("error writing %s: %w", dest, err)
	}
	return nil
}

// copyStreamTo pumps a partition's bytes into w, preserving byte order.
func copyStreamTo(sctx *supervise.Context, stream CsvStream, w io.Writer) error {
	r, err := stream.Open(sctx.Context())
	if err != nil {
		return err
	}
	defer r.Close()
	buf := make([]byte, copyBufferSize)
	if _, err := io.CopyBuffer(w, r, buf); err != nil {
		return fmt.Errorf("cannot read stream %s: %w", stream.Name, err)
	}
	return nil
}
