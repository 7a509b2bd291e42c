// Package schema holds the portable table description that every driver maps
// its native types onto. A Table is constructed per transfer and discarded at
// the end; nothing here is persisted by the engine itself.
package schema

import "fmt"

// DataType is the closed set of portable column types. Drivers translate
// their native type systems onto and from this set, lossily where necessary.
type DataType string

const (
	Bool        DataType = "bool"
	Date        DataType = "date"
	Decimal     DataType = "decimal"
	Float32     DataType = "float32"
	Float64     DataType = "float64"
	Int16       DataType = "int16"
	Int32       DataType = "int32"
	Int64       DataType = "int64"
	JSON        DataType = "json"
	Text        DataType = "text"
	Timestamp   DataType = "timestamp"    // without time zone
	TimestampTZ DataType = "timestamp_tz" // with time zone
	UUID        DataType = "uuid"
)

// Column describes one column of a table.
type Column struct {
	Name       string
	DataType   DataType
	IsNullable bool
	Comment    string
}

// Table is an ordered collection of columns plus a name. Some interchange
// formats carry no table identity, in which case the name is a placeholder.
type Table struct {
	Name    string
	Columns []Column
}

// Validate checks the table-level invariants: at least one column, and
// column names unique within the table.
func (t *Table) Validate() error {
	if len(t.Columns) == 0 {
		return fmt.Errorf("table %q has no columns", t.Name)
	}
	seen := make(map[string]struct{}, len(t.Columns))
	for _, col := range t.Columns {
		if col.Name == "" {
			return fmt.Errorf("table %q has a column with an empty name", t.Name)
		}
		if _, dup := seen[col.Name]; dup {
			return fmt.Errorf("table %q has duplicate column %q", t.Name, col.Name)
		}
		seen[col.Name] = struct{}{}
	}
	return nil
}

// Column returns the named column, or nil if the table has no such column.
func (t *Table) Column(name string) *Column {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}
