package drivers

import (
	"sort"
	"strings"
)

// LocatorFeatures is a bitset of the operations a locator supports.
type LocatorFeatures uint8

const (
	FeatureSchema LocatorFeatures = 1 << iota
	FeatureWriteSchema
	FeatureLocalData
	FeatureWriteLocalData
	FeatureWriteRemoteData
)

// Has reports whether all bits in want are set.
func (f LocatorFeatures) Has(want LocatorFeatures) bool {
	return f&want == want
}

func (f LocatorFeatures) String() string {
	var ops []string
	if f.Has(FeatureSchema) {
		ops = append(ops, "schema")
	}
	if f.Has(FeatureWriteSchema) {
		ops = append(ops, "write-schema")
	}
	if f.Has(FeatureLocalData) {
		ops = append(ops, "local-data")
	}
	if f.Has(FeatureWriteLocalData) {
		ops = append(ops, "write-local-data")
	}
	if f.Has(FeatureWriteRemoteData) {
		ops = append(ops, "write-remote-data")
	}
	return strings.Join(ops, ",")
}

// Features is the static capability descriptor attached to each locator type.
// Advertised features must exactly match implemented behavior; the engine
// validates requests against this descriptor before touching any data.
type Features struct {
	// Locator lists the supported operations.
	Locator LocatorFeatures

	// WriteSchemaIfExists lists the IfExists policies honored by WriteSchema.
	WriteSchemaIfExists IfExistsFeatures

	// DestIfExists lists the IfExists policies honored by data writes.
	DestIfExists IfExistsFeatures

	// SourceQuery reports whether LocalData honors an opaque source query.
	SourceQuery bool

	// SourceArgs and DestArgs name the driver-specific arguments accepted on
	// each side. Anything else is a negotiation failure.
	SourceArgs []string
	DestArgs   []string
}

// AllowsSourceArgs checks that every key in args is an advertised source
// argument, returning the offending keys otherwise.
func (f Features) AllowsSourceArgs(args Args) []string {
	return unknownKeys(args, f.SourceArgs)
}

// AllowsDestArgs checks that every key in args is an advertised destination
// argument, returning the offending keys otherwise.
func (f Features) AllowsDestArgs(args Args) []string {
	return unknownKeys(args, f.DestArgs)
}

func unknownKeys(args Args, allowed []string) []string {
	var unknown []string
	for key := range args {
		found := false
		for _, name := range allowed {
			if key == name {
				found = true
				break
			}
		}
		if !found {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	return unknown
}
