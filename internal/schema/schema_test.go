package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableValidate(t *testing.T) {
	table := &Table{
		Name: "events",
		Columns: []Column{
			{Name: "id", DataType: Int64},
			{Name: "payload", DataType: JSON, IsNullable: true},
		},
	}
	require.NoError(t, table.Validate())

	empty := &Table{Name: "empty"}
	err := empty.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns")

	blank := &Table{Name: "blank", Columns: []Column{{DataType: Text}}}
	err = blank.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty name")

	dup := &Table{
		Name: "dup",
		Columns: []Column{
			{Name: "id", DataType: Int64},
			{Name: "id", DataType: Text},
		},
	}
	err = dup.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate column "id"`)
}

func TestTableColumnLookup(t *testing.T) {
	table := &Table{
		Name: "events",
		Columns: []Column{
			{Name: "id", DataType: Int64},
			{Name: "payload", DataType: JSON, IsNullable: true},
		},
	}

	col := table.Column("payload")
	require.NotNil(t, col)
	assert.Equal(t, JSON, col.DataType)
	assert.True(t, col.IsNullable)

	assert.Nil(t, table.Column("missing"))
}
