package drivers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeObjectStore is an in-memory ObjectStore for driver tests.
type fakeObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte // "bucket/key" -> body
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: map[string][]byte{}}
}

func (f *fakeObjectStore) put(bucket, key, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[bucket+"/"+key] = []byte(body)
}

func (f *fakeObjectStore) List(_ context.Context, bucket, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for id := range f.objects {
		b, key, _ := strings.Cut(id, "/")
		if b == bucket && strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (f *fakeObjectStore) Get(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, fmt.Errorf("no such key %q", key)
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}

func (f *fakeObjectStore) Put(_ context.Context, bucket, key string, body io.Reader) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[bucket+"/"+key] = data
	return nil
}

func TestParseS3Locator(t *testing.T) {
	store := newFakeObjectStore()

	loc, err := parseS3Locator("s3://bucket/exports/", store)
	require.NoError(t, err)
	assert.Equal(t, "s3://bucket/exports/", loc.String())
	assert.Equal(t, "bucket", loc.Bucket())
	assert.Equal(t, "exports/", loc.Prefix())

	for _, bad := range []string{
		"s3://bucket/exports",  // no trailing slash
		"s3:///exports/",       // no bucket
		"gs://bucket/exports/", // wrong scheme
	} {
		_, err := parseS3Locator(bad, store)
		require.Error(t, err, "expected %q to be rejected", bad)
	}
}

func TestS3LocalData(t *testing.T) {
	store := newFakeObjectStore()
	store.put("bucket", "exports/a.csv", "id\n1\n")
	store.put("bucket", "exports/2024/b.CSV", "id\n2\n")
	store.put("bucket", "other/c.csv", "id\n3\n")

	loc, err := parseS3Locator("s3://bucket/exports/", store)
	require.NoError(t, err)

	streams, err := loc.LocalData(newTestContext(t), SourceArgs{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "2024/b"}, streamNames(streams))

	for _, stream := range streams {
		if stream.Name == "a" {
			assert.Equal(t, "id\n1\n", readStream(t, stream))
		}
	}
}

func TestS3LocalDataRejectsNonCSVObjects(t *testing.T) {
	store := newFakeObjectStore()
	store.put("bucket", "exports/a.csv", "id\n1\n")
	store.put("bucket", "exports/readme.md", "hello")

	loc, err := parseS3Locator("s3://bucket/exports/", store)
	require.NoError(t, err)

	_, err = loc.LocalData(newTestContext(t), SourceArgs{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must end in *.csv or *.CSV")
}

func TestS3LocalDataRejectsQueries(t *testing.T) {
	loc, err := parseS3Locator("s3://bucket/exports/", newFakeObjectStore())
	require.NoError(t, err)

	_, err = loc.LocalData(newTestContext(t), SourceArgs{Query: Query{Where: "id > 1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queries")
}

func TestS3WriteLocalData(t *testing.T) {
	store := newFakeObjectStore()
	loc, err := parseS3Locator("s3://bucket/imports/", store)
	require.NoError(t, err)

	data := []CsvStream{
		memStream("a", "id\n1\n"),
		memStream("sub/b", "id\n2\n"),
	}
	completions, err := loc.WriteLocalData(newTestContext(t), data, DestArgs{IfExists: IfExistsOverwrite})
	require.NoError(t, err)
	require.Len(t, completions, 2)
	runAll(t, completions)

	assert.Equal(t, []byte("id\n1\n"), store.objects["bucket/imports/a.csv"])
	assert.Equal(t, []byte("id\n2\n"), store.objects["bucket/imports/sub/b.csv"])
}

func TestS3WriteLocalDataRequiresOverwrite(t *testing.T) {
	loc, err := parseS3Locator("s3://bucket/imports/", newFakeObjectStore())
	require.NoError(t, err)

	_, err = loc.WriteLocalData(newTestContext(t), nil, DestArgs{IfExists: IfExistsAppend})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--if-exists=overwrite")
}

func TestS3SupportsDirectTransferOnlyFromWarehouses(t *testing.T) {
	loc, err := parseS3Locator("s3://bucket/exports/", newFakeObjectStore())
	require.NoError(t, err)

	duck, err := parseDuckDBLocator("duckdb:wh.db#events", nil)
	require.NoError(t, err)
	assert.True(t, loc.SupportsWriteRemoteData(duck))

	csv, err := parseCSVLocator("csv:data/")
	require.NoError(t, err)
	assert.False(t, loc.SupportsWriteRemoteData(csv))

	other, err := parseS3Locator("s3://bucket/other/", newFakeObjectStore())
	require.NoError(t, err)
	assert.False(t, loc.SupportsWriteRemoteData(other))
}
