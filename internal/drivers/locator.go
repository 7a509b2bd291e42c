// Package drivers defines the capability-negotiated endpoint abstraction used
// by the copy engine, plus the built-in adapters: flat CSV files and
// directories, S3 object-storage prefixes, BigQuery schema-interchange
// documents, and DuckDB warehouse tables.
//
// Every adapter implements Locator and a subset of the optional capability
// interfaces below. The subset must match the adapter's advertised Features
// exactly: the engine checks Features during negotiation and treats a
// mismatch between Features and the implemented interfaces as a driver bug.
package drivers

import (
	"context"
	"fmt"
	"io"

	"crosscopy/internal/schema"
	"crosscopy/internal/supervise"
)

// Locator identifies one data source or destination endpoint. Locators are
// immutable once parsed.
type Locator interface {
	fmt.Stringer

	// Scheme returns the locator's scheme prefix, e.g. "csv:".
	Scheme() string

	// Features describes which operations and policies this endpoint supports.
	Features() Features
}

// SchemaReader is implemented by locators that can report a table schema.
type SchemaReader interface {
	Locator

	// Schema returns the current schema, or (nil, nil) when no table exists
	// yet. The latter is not an error: it lets destinations distinguish
	// "create from scratch" from "verify compatibility".
	Schema(sctx *supervise.Context) (*schema.Table, error)
}

// SchemaWriter is implemented by locators that can persist a table schema.
type SchemaWriter interface {
	Locator

	// WriteSchema persists the table's structure, honoring ifExists.
	WriteSchema(sctx *supervise.Context, table *schema.Table, ifExists IfExists) error
}

// SourceArgs carries everything a source needs to produce data.
type SourceArgs struct {
	// Schema is the table schema governing the transfer.
	Schema *schema.Table

	// Query is an opaque source-side filter. Sources without query support
	// must reject a non-empty Query as unsupported.
	Query Query

	// Temp lists temporary staging locations available to the driver.
	Temp TempStorage

	// Args holds driver-specific source arguments.
	Args Args
}

// DestArgs carries everything a destination needs to accept data.
type DestArgs struct {
	// Schema is the table schema governing the transfer.
	Schema *schema.Table

	// Temp lists temporary staging locations available to the driver.
	Temp TempStorage

	// Args holds driver-specific destination arguments.
	Args Args

	// IfExists selects the conflict-resolution policy for existing data.
	IfExists IfExists
}

// Completion is the deferred outcome of writing one partition. The engine
// drives completions with bounded concurrency; any bound >= 1 is correct.
type Completion func() error

// DataSource is implemented by locators that can produce table data.
type DataSource interface {
	Locator

	// LocalData decomposes the endpoint's data into partitions. A nil slice
	// means the endpoint is schema-only and carries no data. Partition byte
	// streams are opened lazily and consumed at most once, in order.
	LocalData(sctx *supervise.Context, args SourceArgs) ([]CsvStream, error)
}

// DataSink is implemented by locators that can accept table data.
type DataSink interface {
	Locator

	// WriteLocalData consumes the partitions produced by a source, honoring
	// args.IfExists, and returns one Completion per output unit so the
	// caller can drive them concurrently and detect per-partition failure.
	WriteLocalData(sctx *supervise.Context, data []CsvStream, args DestArgs) ([]Completion, error)
}

// RemoteWriter is implemented by destinations that can ingest directly from
// certain sources without staging data locally (for example an object-storage
// export driven by a warehouse's native COPY command).
type RemoteWriter interface {
	Locator

	// SupportsWriteRemoteData reports whether this destination can transfer
	// directly from the given concrete source type.
	SupportsWriteRemoteData(source Locator) bool

	// WriteRemoteData performs the direct transfer. Only callable when
	// SupportsWriteRemoteData returned true for this source.
	WriteRemoteData(sctx *supervise.Context, source Locator, srcArgs SourceArgs, dstArgs DestArgs) error
}

// ObjectStore is the external storage-client collaborator the s3 driver
// delegates to. Listing, reading, and writing individual objects is outside
// the engine's scope; implementations live elsewhere (see internal/s3client)
// and tests substitute fakes.
type ObjectStore interface {
	// List returns the keys of all objects under prefix in bucket.
	List(ctx context.Context, bucket, prefix string) ([]string, error)

	// Get opens the object at key for reading.
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)

	// Put writes body as the object at key, replacing any existing object.
	Put(ctx context.Context, bucket, key string, body io.Reader) error
}
