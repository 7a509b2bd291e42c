package drivers

import (
	"fmt"
	"os"
	"strings"
)

// IfExists is the destination-write conflict-resolution policy.
type IfExists string

const (
	// IfExistsError fails the transfer when the destination already exists.
	IfExistsError IfExists = "error"

	// IfExistsOverwrite replaces any existing destination data.
	IfExistsOverwrite IfExists = "overwrite"

	// IfExistsAppend adds to any existing destination data.
	IfExistsAppend IfExists = "append"

	// IfExistsOverwriteOrCreate replaces existing data, creating the
	// destination first when it does not exist yet.
	IfExistsOverwriteOrCreate IfExists = "overwrite-or-create"
)

// ParseIfExists converts a user-supplied policy string.
func ParseIfExists(s string) (IfExists, error) {
	switch IfExists(strings.ToLower(s)) {
	case IfExistsError:
		return IfExistsError, nil
	case IfExistsOverwrite:
		return IfExistsOverwrite, nil
	case IfExistsAppend:
		return IfExistsAppend, nil
	case IfExistsOverwriteOrCreate:
		return IfExistsOverwriteOrCreate, nil
	default:
		return "", fmt.Errorf("unknown if-exists policy %q (expected error, overwrite, append or overwrite-or-create)", s)
	}
}

// OpenFlags translates the policy into file-open flags for file-shaped
// destinations. Policies without a file access mode return an error.
func (ie IfExists) OpenFlags() (int, error) {
	switch ie {
	case IfExistsError:
		return os.O_WRONLY | os.O_CREATE | os.O_EXCL, nil
	case IfExistsOverwrite:
		return os.O_WRONLY | os.O_CREATE | os.O_TRUNC, nil
	case IfExistsAppend:
		return os.O_WRONLY | os.O_CREATE | os.O_APPEND, nil
	default:
		return 0, fmt.Errorf("if-exists policy %q has no file access mode", ie)
	}
}

// IfExistsFeatures is the set of IfExists policies an endpoint honors.
type IfExistsFeatures uint8

const (
	IfExistsFeatureError IfExistsFeatures = 1 << iota
	IfExistsFeatureOverwrite
	IfExistsFeatureAppend
	IfExistsFeatureOverwriteOrCreate
)

// NoAppend is the feature set of endpoints that wholesale-replace or reject,
// such as schema-interchange documents.
func NoAppend() IfExistsFeatures {
	return IfExistsFeatureError | IfExistsFeatureOverwrite
}

// Feature returns the feature bit corresponding to this policy.
func (ie IfExists) Feature() IfExistsFeatures {
	switch ie {
	case IfExistsError:
		return IfExistsFeatureError
	case IfExistsOverwrite:
		return IfExistsFeatureOverwrite
	case IfExistsAppend:
		return IfExistsFeatureAppend
	case IfExistsOverwriteOrCreate:
		return IfExistsFeatureOverwriteOrCreate
	default:
		return 0
	}
}

// Allows reports whether the policy is in the feature set.
func (f IfExistsFeatures) Allows(ie IfExists) bool {
	bit := ie.Feature()
	return bit != 0 && f&bit == bit
}

func (f IfExistsFeatures) String() string {
	var names []string
	for _, ie := range []IfExists{IfExistsError, IfExistsOverwrite, IfExistsAppend, IfExistsOverwriteOrCreate} {
		if f.Allows(ie) {
			names = append(names, string(ie))
		}
	}
	return strings.Join(names, ",")
}
