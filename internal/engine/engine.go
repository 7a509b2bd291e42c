// Package engine orchestrates a transfer between two arbitrary locators. It
// negotiates capabilities before any I/O, prefers a direct remote-to-remote
// transfer when the destination supports one, and otherwise streams
// partitions from the source into the destination with bounded concurrency.
package engine

import (
	"fmt"

	"golang.org/x/sync/errgroup"

	"crosscopy/internal/drivers"
	"crosscopy/internal/schema"
	"crosscopy/internal/supervise"
)

// defaultMaxStreams bounds how many partition writes are in flight at once
// when the caller does not choose a bound. Any bound >= 1 is correct.
const defaultMaxStreams = 4

// Options configures one data transfer.
type Options struct {
	// Schema overrides the source's own schema when set (e.g. read from a
	// schema-interchange locator).
	Schema *schema.Table

	// WriteSchema requests schema propagation to the destination before any
	// data moves. Requesting it against a destination that cannot write
	// schemas is a negotiation failure.
	WriteSchema bool

	// IfExists is the destination conflict-resolution policy.
	IfExists drivers.IfExists

	// Query is an opaque source-side filter; only query-capable sources
	// accept one.
	Query drivers.Query

	// SourceArgs and DestArgs are driver-specific arguments for each side.
	SourceArgs drivers.Args
	DestArgs   drivers.Args

	// Temp lists temporary staging locations available to the drivers.
	Temp drivers.TempStorage

	// MaxStreams bounds concurrently in-flight partition writes; values < 1
	// fall back to the default.
	MaxStreams int
}

// Copy moves a table's data (and optionally its schema) from src to dest.
// Validation errors are returned synchronously before any data is touched;
// failures inside background workers spawned by drivers surface through the
// supervision Monitor instead.
func Copy(sctx *supervise.Context, src, dest drivers.Locator, opts Options) error {
	if err := negotiate(src, dest, opts); err != nil {
		return err
	}

	srcArgs := drivers.SourceArgs{Query: opts.Query, Temp: opts.Temp, Args: opts.SourceArgs}
	dstArgs := drivers.DestArgs{Temp: opts.Temp, Args: opts.DestArgs, IfExists: opts.IfExists}

	// Direct transfer is strictly preferred when available: it avoids the
	// cost of staging every partition locally.
	if rw, ok := dest.(drivers.RemoteWriter); ok && rw.SupportsWriteRemoteData(src) {
		sctx.Logger().Debug("using direct transfer", "source", src.String(), "dest", dest.String())
		srcArgs.Schema = opts.Schema
		dstArgs.Schema = opts.Schema
		if err := rw.WriteRemoteData(sctx, src, srcArgs, dstArgs); err != nil {
			return fmt.Errorf("error transferring %s to %s: %w", src, dest, err)
		}
		return nil
	}

	table, err := resolveSchema(sctx, src, opts)
	if err != nil {
		return err
	}
	srcArgs.Schema = table
	dstArgs.Schema = table

	if opts.WriteSchema {
		writer, ok := dest.(drivers.SchemaWriter)
		if !ok {
			return fmt.Errorf("BUG: %s advertises write-schema but does not implement it", dest)
		}
		if err := writer.WriteSchema(sctx, table, opts.IfExists); err != nil {
			return fmt.Errorf("error writing schema to %s: %w", dest, err)
		}
	}

	source, ok := src.(drivers.DataSource)
	if !ok {
		return fmt.Errorf("BUG: %s advertises local-data but does not implement it", src)
	}
	data, err := source.LocalData(sctx, srcArgs)
	if err != nil {
		return fmt.Errorf("error reading data from %s: %w", src, err)
	}
	if data == nil {
		// Schema-only source; moving the schema alone is a valid transfer.
		sctx.Logger().Debug("source has no data, copied schema only", "source", src.String())
		return nil
	}
	if err := checkStreamNames(data); err != nil {
		return err
	}

	sink, ok := dest.(drivers.DataSink)
	if !ok {
		return fmt.Errorf("BUG: %s advertises write-local-data but does not implement it", dest)
	}
	completions, err := sink.WriteLocalData(sctx, data, dstArgs)
	if err != nil {
		return fmt.Errorf("error writing data to %s: %w", dest, err)
	}

	maxStreams := opts.MaxStreams
	if maxStreams < 1 {
		maxStreams = defaultMaxStreams
	}
	var g errgroup.Group
	g.SetLimit(maxStreams)
	for _, completion := range completions {
		g.Go(completion)
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("error copying %s to %s: %w", src, dest, err)
	}
	return nil
}

// ConvertSchema reads the schema from src and writes it to dest; no data
// moves. Used for pure schema-interchange conversions.
func ConvertSchema(sctx *supervise.Context, src, dest drivers.Locator, ifExists drivers.IfExists) error {
	if !src.Features().Locator.Has(drivers.FeatureSchema) {
		return fmt.Errorf("%s locators do not support reading schemas", src.Scheme())
	}
	if !dest.Features().Locator.Has(drivers.FeatureWriteSchema) {
		return fmt.Errorf("%s locators do not support writing schemas", dest.Scheme())
	}
	if !dest.Features().WriteSchemaIfExists.Allows(ifExists) {
		return fmt.Errorf("%s schema destinations do not support --if-exists=%s", dest.Scheme(), ifExists)
	}

	reader, ok := src.(drivers.SchemaReader)
	if !ok {
		return fmt.Errorf("BUG: %s advertises schema but does not implement it", src)
	}
	table, err := reader.Schema(sctx)
	if err != nil {
		return fmt.Errorf("error reading schema from %s: %w", src, err)
	}
	if table == nil {
		return fmt.Errorf("no schema found at %s", src)
	}

	writer, ok := dest.(drivers.SchemaWriter)
	if !ok {
		return fmt.Errorf("BUG: %s advertises write-schema but does not implement it", dest)
	}
	if err := writer.WriteSchema(sctx, table, ifExists); err != nil {
		return fmt.Errorf("error writing schema to %s: %w", dest, err)
	}
	return nil
}

// negotiate validates the whole request against both endpoints' advertised
// Features. It runs before any I/O: a mismatch must fail without the source
// ever being touched.
func negotiate(src, dest drivers.Locator, opts Options) error {
	srcFeatures := src.Features()
	destFeatures := dest.Features()

	if !srcFeatures.Locator.Has(drivers.FeatureLocalData) {
		return fmt.Errorf("%s locators do not support reading data", src.Scheme())
	}
	canStream := destFeatures.Locator.Has(drivers.FeatureWriteLocalData)
	canDirect := destFeatures.Locator.Has(drivers.FeatureWriteRemoteData)
	if !canStream && !canDirect {
		return fmt.Errorf("%s locators do not support writing data", dest.Scheme())
	}

	if !destFeatures.DestIfExists.Allows(opts.IfExists) {
		return fmt.Errorf("%s destinations do not support --if-exists=%s (supported: %s)",
			dest.Scheme(), opts.IfExists, destFeatures.DestIfExists)
	}
	if opts.WriteSchema {
		if !destFeatures.Locator.Has(drivers.FeatureWriteSchema) {
			return fmt.Errorf("%s locators do not support writing schemas", dest.Scheme())
		}
		if !destFeatures.WriteSchemaIfExists.Allows(opts.IfExists) {
			return fmt.Errorf("%s schema destinations do not support --if-exists=%s", dest.Scheme(), opts.IfExists)
		}
	}
	if !opts.Query.IsEmpty() && !srcFeatures.SourceQuery {
		return fmt.Errorf("%s locators do not support queries", src.Scheme())
	}
	if unknown := srcFeatures.AllowsSourceArgs(opts.SourceArgs); len(unknown) > 0 {
		return fmt.Errorf("%s locators do not accept source arguments %v", src.Scheme(), unknown)
	}
	if unknown := destFeatures.AllowsDestArgs(opts.DestArgs); len(unknown) > 0 {
		return fmt.Errorf("%s locators do not accept destination arguments %v", dest.Scheme(), unknown)
	}
	return nil
}

// resolveSchema picks the schema governing the transfer: an explicit
// override wins, otherwise the source must provide one.
func resolveSchema(sctx *supervise.Context, src drivers.Locator, opts Options) (*schema.Table, error) {
	if opts.Schema != nil {
		return opts.Schema, nil
	}
	reader, ok := src.(drivers.SchemaReader)
	if !ok || !src.Features().Locator.Has(drivers.FeatureSchema) {
		return nil, fmt.Errorf("%s locators do not expose a schema; supply one with --schema", src.Scheme())
	}
	table, err := reader.Schema(sctx)
	if err != nil {
		return nil, fmt.Errorf("error reading schema from %s: %w", src, err)
	}
	if table == nil {
		return nil, fmt.Errorf("no table found at %s", src)
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}

// checkStreamNames enforces the per-transfer invariant that partition names
// are unique.
func checkStreamNames(data []drivers.CsvStream) error {
	seen := make(map[string]struct{}, len(data))
	for _, stream := range data {
		if _, dup := seen[stream.Name]; dup {
			return fmt.Errorf("source produced duplicate stream name %q", stream.Name)
		}
		seen[stream.Name] = struct{}{}
	}
	return nil
}
