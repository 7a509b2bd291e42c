package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crosscopy/internal/drivers"
	"crosscopy/internal/schema"
	"crosscopy/internal/supervise"
)

func newTestContext(t *testing.T) *supervise.Context {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sctx, _ := supervise.New(context.Background(), logger)
	return sctx
}

func testTable() *schema.Table {
	return &schema.Table{
		Name: "events",
		Columns: []schema.Column{
			{Name: "id", DataType: schema.Int64},
			{Name: "payload", DataType: schema.Text, IsNullable: true},
		},
	}
}

func memStream(name, body string) drivers.CsvStream {
	return drivers.CsvStream{
		Name: name,
		Open: func(context.Context) (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(body)), nil
		},
	}
}

// fakeSource records whether the engine touched it.
type fakeSource struct {
	features    drivers.Features
	table       *schema.Table
	streams     []drivers.CsvStream
	nilStreams  bool
	schemaCalls int
	dataCalls   int
}

func newFakeSource(streams []drivers.CsvStream) *fakeSource {
	return &fakeSource{
		features: drivers.Features{
			Locator: drivers.FeatureSchema | drivers.FeatureLocalData,
		},
		table:   testTable(),
		streams: streams,
	}
}

func (s *fakeSource) String() string             { return "fake-source:x" }
func (s *fakeSource) Scheme() string             { return "fake-source:" }
func (s *fakeSource) Features() drivers.Features { return s.features }

func (s *fakeSource) Schema(*supervise.Context) (*schema.Table, error) {
	s.schemaCalls++
	return s.table, nil
}

func (s *fakeSource) LocalData(*supervise.Context, drivers.SourceArgs) ([]drivers.CsvStream, error) {
	s.dataCalls++
	if s.nilStreams {
		return nil, nil
	}
	return s.streams, nil
}

// fakeSink collects the partitions written to it.
type fakeSink struct {
	features     drivers.Features
	failStream   string
	remoteOK     bool
	remoteCalls  int
	writeCalls   int
	schemaWrites int

	mu      sync.Mutex
	written map[string]string
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		features: drivers.Features{
			Locator: drivers.FeatureWriteLocalData | drivers.FeatureWriteSchema,
			WriteSchemaIfExists: drivers.IfExistsFeatureError |
				drivers.IfExistsFeatureOverwrite,
			DestIfExists: drivers.IfExistsFeatureError |
				drivers.IfExistsFeatureOverwrite,
		},
		written: map[string]string{},
	}
}

func (s *fakeSink) String() string             { return "fake-sink:y" }
func (s *fakeSink) Scheme() string             { return "fake-sink:" }
func (s *fakeSink) Features() drivers.Features { return s.features }

func (s *fakeSink) WriteSchema(*supervise.Context, *schema.Table, drivers.IfExists) error {
	s.schemaWrites++
	return nil
}

func (s *fakeSink) WriteLocalData(sctx *supervise.Context, data []drivers.CsvStream, args drivers.DestArgs) ([]drivers.Completion, error) {
	s.writeCalls++
	completions := make([]drivers.Completion, 0, len(data))
	for _, stream := range data {
		completions = append(completions, func() error {
			if stream.Name == s.failStream {
				return errors.New("disk full")
			}
			r, err := stream.Open(sctx.Context())
			if err != nil {
				return err
			}
			defer r.Close()
			body, err := io.ReadAll(r)
			if err != nil {
				return err
			}
			s.mu.Lock()
			s.written[stream.Name] = string(body)
			s.mu.Unlock()
			return nil
		})
	}
	return completions, nil
}

func (s *fakeSink) SupportsWriteRemoteData(drivers.Locator) bool { return s.remoteOK }

func (s *fakeSink) WriteRemoteData(*supervise.Context, drivers.Locator, drivers.SourceArgs, drivers.DestArgs) error {
	s.remoteCalls++
	return nil
}

func TestCopyStreamsAllPartitions(t *testing.T) {
	src := newFakeSource([]drivers.CsvStream{
		memStream("a", "id\n1\n"),
		memStream("b", "id\n2\n"),
		memStream("sub/c", "id\n3\n"),
	})
	sink := newFakeSink()

	err := Copy(newTestContext(t), src, sink, Options{IfExists: drivers.IfExistsOverwrite})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"a":     "id\n1\n",
		"b":     "id\n2\n",
		"sub/c": "id\n3\n",
	}, sink.written)
}

func TestCopyWorksAtAnyConcurrencyBound(t *testing.T) {
	src := newFakeSource([]drivers.CsvStream{
		memStream("a", "id\n1\n"),
		memStream("b", "id\n2\n"),
	})
	sink := newFakeSink()

	err := Copy(newTestContext(t), src, sink, Options{
		IfExists:   drivers.IfExistsOverwrite,
		MaxStreams: 1,
	})
	require.NoError(t, err)
	assert.Len(t, sink.written, 2)
}

func TestCopyReportsPartitionFailure(t *testing.T) {
	src := newFakeSource([]drivers.CsvStream{
		memStream("a", "id\n1\n"),
		memStream("b", "id\n2\n"),
	})
	sink := newFakeSink()
	sink.failStream = "b"

	err := Copy(newTestContext(t), src, sink, Options{IfExists: drivers.IfExistsOverwrite})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestCopyRejectsUnsupportedIfExistsBeforeTouchingSource(t *testing.T) {
	src := newFakeSource(nil)
	sink := newFakeSink() // no append support

	err := Copy(newTestContext(t), src, sink, Options{IfExists: drivers.IfExistsAppend})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--if-exists=append")
	assert.Zero(t, src.schemaCalls, "source schema was read despite negotiation failure")
	assert.Zero(t, src.dataCalls, "source data was read despite negotiation failure")
}

func TestCopyRejectsQueryAgainstQuerylessSource(t *testing.T) {
	src := newFakeSource(nil)
	sink := newFakeSink()

	err := Copy(newTestContext(t), src, sink, Options{
		IfExists: drivers.IfExistsOverwrite,
		Query:    drivers.Query{Where: "id > 10"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queries")
	assert.Zero(t, src.dataCalls)
}

func TestCopyRejectsUnknownArguments(t *testing.T) {
	src := newFakeSource(nil)
	sink := newFakeSink()

	err := Copy(newTestContext(t), src, sink, Options{
		IfExists:   drivers.IfExistsOverwrite,
		SourceArgs: drivers.Args{"turbo": "on"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "turbo")
	assert.Zero(t, src.dataCalls)
}

func TestCopyRejectsSchemaWriteAgainstIncapableDestination(t *testing.T) {
	src := newFakeSource(nil)
	sink := newFakeSink()
	sink.features.Locator = drivers.FeatureWriteLocalData // drop write-schema

	err := Copy(newTestContext(t), src, sink, Options{
		IfExists:    drivers.IfExistsOverwrite,
		WriteSchema: true,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "writing schemas")
	assert.Zero(t, sink.schemaWrites)
}

func TestCopyWritesSchemaWhenRequested(t *testing.T) {
	src := newFakeSource([]drivers.CsvStream{memStream("a", "id\n1\n")})
	sink := newFakeSink()

	err := Copy(newTestContext(t), src, sink, Options{
		IfExists:    drivers.IfExistsOverwrite,
		WriteSchema: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, sink.schemaWrites)
}

func TestCopyUsesDirectTransferWhenSupported(t *testing.T) {
	src := newFakeSource([]drivers.CsvStream{memStream("a", "id\n1\n")})
	sink := newFakeSink()
	sink.remoteOK = true
	sink.features.Locator |= drivers.FeatureWriteRemoteData

	err := Copy(newTestContext(t), src, sink, Options{IfExists: drivers.IfExistsOverwrite})
	require.NoError(t, err)
	assert.Equal(t, 1, sink.remoteCalls)
	assert.Zero(t, src.dataCalls, "direct transfer must not read local data")
	assert.Zero(t, sink.writeCalls)
}

func TestCopyFallsBackToStreamingWhenDirectUnsupported(t *testing.T) {
	src := newFakeSource([]drivers.CsvStream{memStream("a", "id\n1\n")})
	sink := newFakeSink()
	sink.remoteOK = false
	sink.features.Locator |= drivers.FeatureWriteRemoteData

	err := Copy(newTestContext(t), src, sink, Options{IfExists: drivers.IfExistsOverwrite})
	require.NoError(t, err)
	assert.Zero(t, sink.remoteCalls)
	assert.Equal(t, 1, sink.writeCalls)
}

func TestCopySchemaOnlySourceSucceedsWithZeroPartitions(t *testing.T) {
	src := newFakeSource(nil)
	src.nilStreams = true
	sink := newFakeSink()

	err := Copy(newTestContext(t), src, sink, Options{
		IfExists:    drivers.IfExistsOverwrite,
		WriteSchema: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, sink.schemaWrites)
	assert.Zero(t, sink.writeCalls, "no data should be written for a schema-only source")
}

func TestCopyEmptyPartitionListSucceeds(t *testing.T) {
	src := newFakeSource([]drivers.CsvStream{})
	sink := newFakeSink()

	err := Copy(newTestContext(t), src, sink, Options{IfExists: drivers.IfExistsOverwrite})
	require.NoError(t, err)
	assert.Empty(t, sink.written)
}

func TestCopyRejectsDuplicateStreamNames(t *testing.T) {
	src := newFakeSource([]drivers.CsvStream{
		memStream("a", "id\n1\n"),
		memStream("a", "id\n2\n"),
	})
	sink := newFakeSink()

	err := Copy(newTestContext(t), src, sink, Options{IfExists: drivers.IfExistsOverwrite})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate stream name")
}

func TestConvertSchema(t *testing.T) {
	src := newFakeSource(nil)
	sink := newFakeSink()

	err := ConvertSchema(newTestContext(t), src, sink, drivers.IfExistsError)
	require.NoError(t, err)
	assert.Equal(t, 1, sink.schemaWrites)
	assert.Equal(t, 1, src.schemaCalls)
}

func TestConvertSchemaRejectsUnsupportedIfExists(t *testing.T) {
	src := newFakeSource(nil)
	sink := newFakeSink() // schema writes support error/overwrite only

	err := ConvertSchema(newTestContext(t), src, sink, drivers.IfExistsAppend)
	require.Error(t, err)
	assert.Zero(t, src.schemaCalls)
	assert.Zero(t, sink.schemaWrites)
}
