package drivers

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"crosscopy/internal/schema"
	"crosscopy/internal/supervise"
)

// duckDBScheme is the locator scheme for DuckDB warehouse tables.
const duckDBScheme = "duckdb:"

var duckDBTableRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// DuckDBLocator is one table inside a DuckDB database file, written as
// "duckdb:PATH#TABLE". It is the warehouse exemplar: besides streaming data
// in and out, it can bulk-load directly from object storage and export
// directly to it, which is what enables the direct-transfer path.
type DuckDBLocator struct {
	path  string
	table string
	open  func(path string) (*sql.DB, error)
}

var (
	_ SchemaReader = (*DuckDBLocator)(nil)
	_ SchemaWriter = (*DuckDBLocator)(nil)
	_ DataSource   = (*DuckDBLocator)(nil)
	_ DataSink     = (*DuckDBLocator)(nil)
	_ RemoteWriter = (*DuckDBLocator)(nil)
)

func parseDuckDBLocator(s string, open func(string) (*sql.DB, error)) (*DuckDBLocator, error) {
	rest := strings.TrimPrefix(s, duckDBScheme)
	path, table, ok := strings.Cut(rest, "#")
	if !ok {
		return nil, fmt.Errorf("expected %q to look like duckdb:PATH#TABLE", s)
	}
	if path == "" {
		return nil, fmt.Errorf("%s is missing a database path", s)
	}
	if !duckDBTableRE.MatchString(table) {
		return nil, fmt.Errorf("%q is not a valid table name in %s", table, s)
	}
	return &DuckDBLocator{path: path, table: table, open: open}, nil
}

func (l *DuckDBLocator) String() string { return duckDBScheme + l.path + "#" + l.table }

func (l *DuckDBLocator) Scheme() string { return duckDBScheme }

func (l *DuckDBLocator) Features() Features { return duckDBFeatures() }

func duckDBFeatures() Features {
	all := IfExistsFeatureError | IfExistsFeatureOverwrite | IfExistsFeatureAppend | IfExistsFeatureOverwriteOrCreate
	return Features{
		Locator:             FeatureSchema | FeatureWriteSchema | FeatureLocalData | FeatureWriteLocalData | FeatureWriteRemoteData,
		WriteSchemaIfExists: all,
		DestIfExists:        all,
		SourceQuery:         true,
	}
}

// Table returns the table name component of the locator.
func (l *DuckDBLocator) Table() string { return l.table }

func (l *DuckDBLocator) openDB() (*sql.DB, error) {
	db, err := l.open(l.path)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", l.path, err)
	}
	return db, nil
}

// Schema reads the table's structure from information_schema. A missing
// table is reported as (nil, nil), not an error.
func (l *DuckDBLocator) Schema(sctx *supervise.Context) (*schema.Table, error) {
	db, err := l.openDB()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(sctx.Context(),
		`SELECT column_name, data_type, is_nullable
		   FROM information_schema.columns
		  WHERE table_name = ?
		  ORDER BY ordinal_position`, l.table)
	if err != nil {
		return nil, fmt.Errorf("error reading schema of %s: %w", l, err)
	}
	defer rows.Close()

	var columns []schema.Column
	for rows.Next() {
		var name, nativeType, nullable string
		if err := rows.Scan(&name, &nativeType, &nullable); err != nil {
			return nil, fmt.Errorf("error reading schema of %s: %w", l, err)
		}
		dt, err := duckDBToDataType(nativeType)
		if err != nil {
			return nil, fmt.Errorf("error reading schema of %s: %w", l, err)
		}
		columns = append(columns, schema.Column{
			Name:       name,
			DataType:   dt,
			IsNullable: strings.EqualFold(nullable, "YES"),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading schema of %s: %w", l, err)
	}
	if len(columns) == 0 {
		return nil, nil // no table yet
	}
	return &schema.Table{Name: l.table, Columns: columns}, nil
}

// WriteSchema creates the destination table, honoring ifExists.
func (l *DuckDBLocator) WriteSchema(sctx *supervise.Context, table *schema.Table, ifExists IfExists) error {
	db, err := l.openDB()
	if err != nil {
		return err
	}
	defer db.Close()
	return l.prepareTable(sctx, db, table, ifExists)
}

// prepareTable creates (and if necessary drops) the destination table
// according to ifExists.
func (l *DuckDBLocator) prepareTable(sctx *supervise.Context, db *sql.DB, table *schema.Table, ifExists IfExists) error {
	if table == nil {
		if ifExists == IfExistsAppend {
			// Appending to an existing table needs no CREATE; the load fails
			// on its own if the table is missing.
			return nil
		}
		return fmt.Errorf("no schema available to create table %s", l)
	}
	ctx := sctx.Context()
	switch ifExists {
	case IfExistsOverwrite, IfExistsOverwriteOrCreate:
		drop := "DROP TABLE IF EXISTS " + quoteIdent(l.table)
		if _, err := db.ExecContext(ctx, drop); err != nil {
			return fmt.Errorf("cannot drop table %s: %w", l, err)
		}
	case IfExistsError, IfExistsAppend:
		// handled by the CREATE statement itself
	default:
		return fmt.Errorf("duckdb destinations do not support --if-exists=%s", ifExists)
	}

	create, err := createTableSQL(l.table, table, ifExists == IfExistsAppend)
	if err != nil {
		return err
	}
	sctx.Logger().Debug("creating table", "table", l.table)
	if _, err := db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("cannot create table %s: %w", l, err)
	}
	return nil
}

// createTableSQL renders a CREATE TABLE statement for the portable schema.
func createTableSQL(name string, table *schema.Table, ifNotExists bool) (string, error) {
	var sb strings.Builder
	sb.WriteString("CREATE TABLE ")
	if ifNotExists {
		sb.WriteString("IF NOT EXISTS ")
	}
	sb.WriteString(quoteIdent(name))
	sb.WriteString(" (")
	for i, col := range table.Columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		nativeType, err := dataTypeToDuckDB(col.DataType)
		if err != nil {
			return "", fmt.Errorf("column %q: %w", col.Name, err)
		}
		sb.WriteString(quoteIdent(col.Name))
		sb.WriteString(" ")
		sb.WriteString(nativeType)
		if !col.IsNullable {
			sb.WriteString(" NOT NULL")
		}
	}
	sb.WriteString(")")
	return sb.String(), nil
}

// selectSQL renders the data query for this table, with the caller's opaque
// WHERE fragment appended verbatim when present.
func selectSQL(name string, query Query) string {
	s := "SELECT * FROM " + quoteIdent(name)
	if !query.IsEmpty() {
		s += " WHERE " + query.Where
	}
	return s
}

// LocalData streams the table's rows as a single CSV partition named after
// the table. The rows are fetched lazily when the partition is consumed; the
// encoding pump runs as a supervised background worker.
func (l *DuckDBLocator) LocalData(sctx *supervise.Context, args SourceArgs) ([]CsvStream, error) {
	if err := args.Args.CheckUnsupported(duckDBScheme); err != nil {
		return nil, err
	}
	query := selectSQL(l.table, args.Query)
	return []CsvStream{{
		Name: l.table,
		Open: func(ctx context.Context) (io.ReadCloser, error) {
			db, err := l.openDB()
			if err != nil {
				return nil, err
			}
			rows, err := db.QueryContext(ctx, query)
			if err != nil {
				db.Close()
				return nil, fmt.Errorf("error querying %s: %w", l, err)
			}
			pr, pw := io.Pipe()
			child := sctx.Child("stream", l.table)
			child.Spawn(func() error {
				defer db.Close()
				defer rows.Close()
				err := writeRowsAsCSV(pw, rows)
				if err != nil {
					err = fmt.Errorf("error reading %s: %w", l, err)
				}
				pw.CloseWithError(err)
				return err
			})
			return pr, nil
		},
	}}, nil
}

// writeRowsAsCSV encodes a result set as CSV with a header row.
func writeRowsAsCSV(w io.Writer, rows *sql.Rows) error {
	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(cols); err != nil {
		return err
	}

	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	record := make([]string, len(cols))
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		for i, v := range vals {
			record[i] = formatCSVValue(v)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func formatCSVValue(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// WriteLocalData prepares the destination table once, then loads each
// partition with a native COPY FROM after staging it to a local temp file.
func (l *DuckDBLocator) WriteLocalData(sctx *supervise.Context, data []CsvStream, args DestArgs) ([]Completion, error) {
	if err := args.Args.CheckUnsupported(duckDBScheme); err != nil {
		return nil, err
	}
	db, err := l.openDB()
	if err != nil {
		return nil, err
	}
	if err := l.prepareTable(sctx, db, args.Schema, args.IfExists); err != nil {
		db.Close()
		return nil, err
	}

	if len(data) == 0 {
		return nil, db.Close()
	}

	// The connection is shared by all completions; the last one to finish
	// closes it. If the engine abandons completions after a failure, the
	// handle is left for process exit, like any other abandoned work.
	remaining := int64(len(data))
	release := func() {
		if atomic.AddInt64(&remaining, -1) == 0 {
			db.Close()
		}
	}

	tempDir := args.Temp.LocalDir()
	completions := make([]Completion, 0, len(data))
	for _, stream := range data {
		completions = append(completions, func() error {
			defer release()
			child := sctx.Child("stream", stream.Name)
			staged, err := stageStreamToFile(child, stream, tempDir)
			if err != nil {
				return err
			}
			defer os.Remove(staged)
			child.Logger().Debug("loading staged file", "path", staged, "table", l.table)
			load := "COPY " + quoteIdent(l.table) + " FROM " + quoteLiteral(staged) + " (FORMAT csv, HEADER)"
			if _, err := db.ExecContext(child.Context(), load); err != nil {
				return fmt.Errorf("cannot load stream %s into %s: %w", stream.Name, l, err)
			}
			return nil
		})
	}
	return completions, nil
}

// stageStreamToFile spools one partition to a uniquely named local file so
// the warehouse can bulk-load it.
func stageStreamToFile(sctx *supervise.Context, stream CsvStream, dir string) (string, error) {
	r, err := stream.Open(sctx.Context())
	if err != nil {
		return "", fmt.Errorf("cannot open stream %s: %w", stream.Name, err)
	}
	defer r.Close()

	staged := filepath.Join(dir, "crosscopy-"+uuid.NewString()+".csv")
	f, err := os.OpenFile(staged, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("cannot create staging file %s: %w", staged, err)
	}
	buf := make([]byte, copyBufferSize)
	if _, err := io.CopyBuffer(f, r, buf); err != nil {
		f.Close()
		os.Remove(staged)
		return "", fmt.Errorf("cannot stage stream %s: %w", stream.Name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(staged)
		return "", fmt.Errorf("cannot stage stream %s: %w", stream.Name, err)
	}
	return staged, nil
}

// SupportsWriteRemoteData reports true for object-storage sources, which
// DuckDB can bulk-load natively over httpfs without local staging.
func (l *DuckDBLocator) SupportsWriteRemoteData(source Locator) bool {
	_, ok := source.(*S3Locator)
	return ok
}

// WriteRemoteData bulk-loads every CSV object under the source prefix with a
// single native read_csv scan.
func (l *DuckDBLocator) WriteRemoteData(sctx *supervise.Context, source Locator, srcArgs SourceArgs, dstArgs DestArgs) error {
	if err := dstArgs.Args.CheckUnsupported(duckDBScheme); err != nil {
		return err
	}
	s3, ok := source.(*S3Locator)
	if !ok {
		return fmt.Errorf("cannot transfer directly from %s to %s", source, l)
	}
	if err := srcArgs.Query.CheckUnsupported(s3Scheme); err != nil {
		return err
	}

	db, err := l.openDB()
	if err != nil {
		return err
	}
	defer db.Close()
	if err := ensureHTTPFS(sctx.Context(), db); err != nil {
		return err
	}
	if err := l.prepareTable(sctx, db, dstArgs.Schema, dstArgs.IfExists); err != nil {
		return err
	}

	glob := fmt.Sprintf("s3://%s/%s*.csv", s3.Bucket(), s3.Prefix())
	sctx.Logger().Debug("bulk loading from object storage", "glob", glob, "table", l.table)
	load := "INSERT INTO " + quoteIdent(l.table) +
		" SELECT * FROM read_csv(" + quoteLiteral(glob) + ", header = true)"
	if _, err := db.ExecContext(sctx.Context(), load); err != nil {
		return fmt.Errorf("cannot bulk load %s into %s: %w", s3, l, err)
	}
	return nil
}

// exportToObjectStore runs the warehouse's native export straight into an
// object-storage prefix. Called by the s3 destination's direct-transfer path.
func (l *DuckDBLocator) exportToObjectStore(sctx *supervise.Context, dest *S3Locator, query Query) error {
	db, err := l.openDB()
	if err != nil {
		return err
	}
	defer db.Close()
	if err := ensureHTTPFS(sctx.Context(), db); err != nil {
		return err
	}

	target := fmt.Sprintf("s3://%s/%s%s.csv", dest.Bucket(), dest.Prefix(), l.table)
	sctx.Logger().Debug("bulk exporting to object storage", "target", target, "table", l.table)
	export := "COPY (" + selectSQL(l.table, query) + ") TO " + quoteLiteral(target) + " (FORMAT csv, HEADER)"
	if _, err := db.ExecContext(sctx.Context(), export); err != nil {
		return fmt.Errorf("cannot bulk export %s to %s: %w", l, dest, err)
	}
	return nil
}

// ensureHTTPFS loads the extension DuckDB needs to talk to object storage.
func ensureHTTPFS(ctx context.Context, db *sql.DB) error {
	for _, stmt := range []string{"INSTALL httpfs", "LOAD httpfs"} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("cannot enable httpfs: %w", err)
		}
	}
	return nil
}

// quoteIdent quotes a SQL identifier.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// quoteLiteral quotes a SQL string literal.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// dataTypeToDuckDB maps the portable type onto DuckDB's vocabulary.
func dataTypeToDuckDB(dt schema.DataType) (string, error) {
	switch dt {
	case schema.Bool:
		return "BOOLEAN", nil
	case schema.Date:
		return "DATE", nil
	case schema.Decimal:
		return "DECIMAL(38, 9)", nil
	case schema.Float32:
		return "REAL", nil
	case schema.Float64:
		return "DOUBLE", nil
	case schema.Int16:
		return "SMALLINT", nil
	case schema.Int32:
		return "INTEGER", nil
	case schema.Int64:
		return "BIGINT", nil
	case schema.JSON:
		return "JSON", nil
	case schema.Text:
		return "VARCHAR", nil
	case schema.Timestamp:
		return "TIMESTAMP", nil
	case schema.TimestampTZ:
		return "TIMESTAMP WITH TIME ZONE", nil
	case schema.UUID:
		return "UUID", nil
	default:
		return "", fmt.Errorf("cannot represent type %q in DuckDB", dt)
	}
}

// duckDBToDataType maps a DuckDB native type onto the portable model.
func duckDBToDataType(nativeType string) (schema.DataType, error) {
	t := strings.ToUpper(nativeType)
	if strings.HasPrefix(t, "DECIMAL") || strings.HasPrefix(t, "NUMERIC") {
		return schema.Decimal, nil
	}
	switch t {
	case "BOOLEAN":
		return schema.Bool, nil
	case "DATE":
		return schema.Date, nil
	case "REAL", "FLOAT":
		return schema.Float32, nil
	case "DOUBLE":
		return schema.Float64, nil
	case "SMALLINT":
		return schema.Int16, nil
	case "INTEGER":
		return schema.Int32, nil
	case "BIGINT":
		return schema.Int64, nil
	case "JSON":
		return schema.JSON, nil
	case "VARCHAR", "TEXT":
		return schema.Text, nil
	case "TIMESTAMP":
		return schema.Timestamp, nil
	case "TIMESTAMP WITH TIME ZONE", "TIMESTAMPTZ":
		return schema.TimestampTZ, nil
	case "UUID":
		return schema.UUID, nil
	default:
		return "", fmt.Errorf("unknown DuckDB column type %q", nativeType)
	}
}
