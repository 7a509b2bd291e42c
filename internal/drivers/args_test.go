package drivers

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArgs(t *testing.T) {
	args, err := ParseArgs([]string{"format=csv", "delimiter=;", "flag="})
	require.NoError(t, err)
	assert.Equal(t, Args{"format": "csv", "delimiter": ";", "flag": ""}, args)

	args, err = ParseArgs(nil)
	require.NoError(t, err)
	assert.Nil(t, args)

	_, err = ParseArgs([]string{"no-equals-sign"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed")

	_, err = ParseArgs([]string{"=value"})
	require.Error(t, err)

	_, err = ParseArgs([]string{"key=a", "key=b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestArgsCheckUnsupported(t *testing.T) {
	require.NoError(t, Args(nil).CheckUnsupported("csv:"))

	err := Args{"b": "2", "a": "1"}.CheckUnsupported("csv:")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a, b", "argument names should be sorted")
}

func TestQueryCheckUnsupported(t *testing.T) {
	require.NoError(t, Query{}.CheckUnsupported("csv:"))
	require.Error(t, Query{Where: "id > 1"}.CheckUnsupported("csv:"))
}

func TestTempStorageLocalDir(t *testing.T) {
	assert.Equal(t, "/tmp/staging", TempStorage{Locations: []string{"/tmp/staging"}}.LocalDir())
	assert.Equal(t, "/tmp/staging", TempStorage{Locations: []string{"file:/tmp/staging"}}.LocalDir())
	assert.Equal(t, "/tmp/staging",
		TempStorage{Locations: []string{"s3://bucket/tmp/", "/tmp/staging"}}.LocalDir(),
		"remote locations are skipped when picking a local directory")
	assert.Equal(t, os.TempDir(), TempStorage{}.LocalDir())
}

func TestParseIfExists(t *testing.T) {
	for _, s := range []string{"error", "overwrite", "append", "overwrite-or-create", "OVERWRITE"} {
		_, err := ParseIfExists(s)
		require.NoError(t, err, "ParseIfExists(%q)", s)
	}

	_, err := ParseIfExists("upsert")
	require.Error(t, err)
}

func TestIfExistsOpenFlags(t *testing.T) {
	flags, err := IfExistsError.OpenFlags()
	require.NoError(t, err)
	assert.NotZero(t, flags&os.O_EXCL)

	flags, err = IfExistsOverwrite.OpenFlags()
	require.NoError(t, err)
	assert.NotZero(t, flags&os.O_TRUNC)

	flags, err = IfExistsAppend.OpenFlags()
	require.NoError(t, err)
	assert.NotZero(t, flags&os.O_APPEND)

	_, err = IfExistsOverwriteOrCreate.OpenFlags()
	require.Error(t, err, "overwrite-or-create is a table policy, not a file policy")
}

func TestIfExistsFeatures(t *testing.T) {
	assert.True(t, NoAppend().Allows(IfExistsError))
	assert.True(t, NoAppend().Allows(IfExistsOverwrite))
	assert.False(t, NoAppend().Allows(IfExistsAppend))
	assert.False(t, NoAppend().Allows(IfExistsOverwriteOrCreate))
	assert.False(t, NoAppend().Allows(IfExists("bogus")))

	assert.Equal(t, "error,overwrite", NoAppend().String())
	assert.Equal(t, "overwrite", IfExistsFeatureOverwrite.String())
}
