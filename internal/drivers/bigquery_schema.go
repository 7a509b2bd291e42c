package drivers

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"crosscopy/internal/schema"
	"crosscopy/internal/supervise"
)

// bigQuerySchemaScheme is the locator scheme for BigQuery JSON schema files.
const bigQuerySchemaScheme = "bigquery-schema:"

// BigQuerySchemaLocator is a JSON document describing a BigQuery table
// schema: an ordered list of column descriptors. It is schema-only, carrying
// no data and no table identity.
type BigQuerySchemaLocator struct {
	path pathOrStdio
}

var (
	_ SchemaReader = (*BigQuerySchemaLocator)(nil)
	_ SchemaWriter = (*BigQuerySchemaLocator)(nil)
)

func parseBigQuerySchemaLocator(s string) (*BigQuerySchemaLocator, error) {
	p, err := parsePathOrStdio(bigQuerySchemaScheme, s)
	if err != nil {
		return nil, err
	}
	return &BigQuerySchemaLocator{path: p}, nil
}

func (l *BigQuerySchemaLocator) String() string {
	return l.path.locatorString(bigQuerySchemaScheme)
}

func (l *BigQuerySchemaLocator) Scheme() string { return bigQuerySchemaScheme }

func (l *BigQuerySchemaLocator) Features() Features { return bigQuerySchemaFeatures() }

func bigQuerySchemaFeatures() Features {
	return Features{
		Locator: FeatureSchema | FeatureWriteSchema,
		// Schema documents are wholesale-replaced or rejected, never appended.
		WriteSchemaIfExists: NoAppend(),
	}
}

// bqColumn is one column descriptor in a BigQuery JSON schema document.
type bqColumn struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Mode        string `json:"mode,omitempty"`
	Description string `json:"description,omitempty"`
}

// Schema parses the JSON column list into a portable table. The format
// carries no table name, so the table gets a fixed placeholder.
func (l *BigQuerySchemaLocator) Schema(sctx *supervise.Context) (*schema.Table, error) {
	r, err := l.path.openRead()
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", l, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", l, err)
	}
	var bqColumns []bqColumn
	if err := json.Unmarshal(data, &bqColumns); err != nil {
		return nil, fmt.Errorf("error parsing %s: %w", l, err)
	}

	columns := make([]schema.Column, 0, len(bqColumns))
	for _, bq := range bqColumns {
		col, err := bq.toColumn()
		if err != nil {
			return nil, fmt.Errorf("error parsing %s: %w", l, err)
		}
		columns = append(columns, col)
	}
	table := &schema.Table{Name: "unnamed", Columns: columns}
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("error parsing %s: %w", l, err)
	}
	return table, nil
}

// WriteSchema performs the inverse mapping, discarding the table's name
// (irrelevant for a pure interchange document).
func (l *BigQuerySchemaLocator) WriteSchema(sctx *supervise.Context, table *schema.Table, ifExists IfExists) error {
	if !bigQuerySchemaFeatures().WriteSchemaIfExists.Allows(ifExists) {
		return fmt.Errorf("%s destinations do not support --if-exists=%s", bigQuerySchemaScheme, ifExists)
	}
	bqColumns := make([]bqColumn, 0, len(table.Columns))
	for _, col := range table.Columns {
		bq, err := toBQColumn(col)
		if err != nil {
			return err
		}
		bqColumns = append(bqColumns, bq)
	}
	data, err := json.MarshalIndent(bqColumns, "", "  ")
	if err != nil {
		return fmt.Errorf("error serializing schema: %w", err)
	}
	data = append(data, '\n')

	if l.path.stdio {
		_, err := os.Stdout.Write(data)
		return err
	}
	flags, err := ifExists.OpenFlags()
	if err != nil {
		return err
	}
	f, err := os.OpenFile(l.path.path, flags, 0o644)
	if err != nil {
		return fmt.Errorf("cannot open %s: %w", l.path.path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("error writing %s: %w", l.path.path, err)
	}
	return f.Close()
}

// toColumn maps a BigQuery column descriptor onto the portable model.
func (bq bqColumn) toColumn() (schema.Column, error) {
	var dt schema.DataType
	switch bq.Type {
	case "STRING":
		dt = schema.Text
	case "INT64", "INTEGER":
		dt = schema.Int64
	case "FLOAT64", "FLOAT":
		dt = schema.Float64
	case "BOOL", "BOOLEAN":
		dt = schema.Bool
	case "DATE":
		dt = schema.Date
	case "TIMESTAMP":
		dt = schema.TimestampTZ
	case "DATETIME":
		dt = schema.Timestamp
	case "NUMERIC":
		dt = schema.Decimal
	case "JSON":
		dt = schema.JSON
	default:
		return schema.Column{}, fmt.Errorf("unknown BigQuery column type %q for column %q", bq.Type, bq.Name)
	}

	var nullable bool
	switch bq.Mode {
	case "", "NULLABLE":
		nullable = true
	case "REQUIRED":
		nullable = false
	default:
		// REPEATED (array) columns have no portable representation here.
		return schema.Column{}, fmt.Errorf("unsupported BigQuery column mode %q for column %q", bq.Mode, bq.Name)
	}

	return schema.Column{
		Name:       bq.Name,
		DataType:   dt,
		IsNullable: nullable,
		Comment:    bq.Description,
	}, nil
}

// toBQColumn maps a portable column onto BigQuery's vocabulary, widening
// where BigQuery has no exact equivalent.
func toBQColumn(col schema.Column) (bqColumn, error) {
	var bqType string
	switch col.DataType {
	case schema.Text:
		bqType = "STRING"
	case schema.Int16, schema.Int32, schema.Int64:
		bqType = "INT64"
	case schema.Float32, schema.Float64:
		bqType = "FLOAT64"
	case schema.Bool:
		bqType = "BOOL"
	case schema.Date:
		bqType = "DATE"
	case schema.TimestampTZ:
		bqType = "TIMESTAMP"
	case schema.Timestamp:
		bqType = "DATETIME"
	case schema.Decimal:
		bqType = "NUMERIC"
	case schema.JSON:
		bqType = "JSON"
	case schema.UUID:
		bqType = "STRING"
	default:
		return bqColumn{}, fmt.Errorf("cannot represent column %q of type %q in a BigQuery schema", col.Name, col.DataType)
	}
	mode := "NULLABLE"
	if !col.IsNullable {
		mode = "REQUIRED"
	}
	return bqColumn{
		Name:        col.Name,
		Type:        bqType,
		Mode:        mode,
		Description: col.Comment,
	}, nil
}
