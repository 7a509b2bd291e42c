package drivers

import (
	"database/sql"
	"fmt"
	"strings"
)

// Registry parses locator strings into concrete locators, injecting the
// external collaborators (object-storage client, warehouse opener) that some
// drivers delegate to. Tests substitute fakes through the same options.
type Registry struct {
	store      ObjectStore
	openDuckDB func(path string) (*sql.DB, error)
}

// RegistryOptions configures the collaborators available to parsed locators.
type RegistryOptions struct {
	// Store is the object-storage client used by s3 locators. When nil,
	// parsing an s3 locator fails with a configuration error.
	Store ObjectStore

	// OpenDuckDB opens a DuckDB database file. Defaults to database/sql with
	// the duckdb driver.
	OpenDuckDB func(path string) (*sql.DB, error)
}

// NewRegistry builds a registry for the built-in locator schemes.
func NewRegistry(opts RegistryOptions) *Registry {
	open := opts.OpenDuckDB
	if open == nil {
		open = func(path string) (*sql.DB, error) {
			return sql.Open("duckdb", path)
		}
	}
	return &Registry{store: opts.Store, openDuckDB: open}
}

// SchemeInfo describes one supported scheme for capability listings.
type SchemeInfo struct {
	Scheme   string
	Example  string
	Features Features
}

// Schemes lists every scheme this registry can parse, with its features.
func (r *Registry) Schemes() []SchemeInfo {
	return []SchemeInfo{
		{Scheme: csvScheme, Example: "csv:dir/file.csv, csv:dir/, csv:-", Features: csvFeatures()},
		{Scheme: s3Scheme, Example: "s3://bucket/prefix/", Features: s3Features()},
		{Scheme: bigQuerySchemaScheme, Example: "bigquery-schema:schema.json, bigquery-schema:-", Features: bigQuerySchemaFeatures()},
		{Scheme: duckDBScheme, Example: "duckdb:warehouse.db#table", Features: duckDBFeatures()},
	}
}

// Parse converts a locator string into a concrete locator, dispatching on
// the scheme prefix. Scheme-specific location constraints are validated
// here, before any I/O happens.
func (r *Registry) Parse(s string) (Locator, error) {
	switch {
	case strings.HasPrefix(s, csvScheme):
		return parseCSVLocator(s)
	case strings.HasPrefix(s, s3Scheme):
		if r.store == nil {
			return nil, fmt.Errorf("cannot use %q: object storage is not configured (set AWS credentials)", s)
		}
		return parseS3Locator(s, r.store)
	case strings.HasPrefix(s, bigQuerySchemaScheme):
		return parseBigQuerySchemaLocator(s)
	case strings.HasPrefix(s, duckDBScheme):
		return parseDuckDBLocator(s, r.openDuckDB)
	default:
		return nil, fmt.Errorf("unknown locator scheme in %q (supported: %s, %s, %s, %s)",
			s, csvScheme, s3Scheme, bigQuerySchemaScheme, duckDBScheme)
	}
}
