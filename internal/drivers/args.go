package drivers

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// Query is an opaque source-side filter passed through to drivers that
// support it. The engine never interprets it.
type Query struct {
	// Where is a driver-native row filter (typically a SQL WHERE fragment).
	Where string
}

// IsEmpty reports whether the query carries no details.
func (q Query) IsEmpty() bool {
	return q.Where == ""
}

// CheckUnsupported returns a validation error when a query was supplied to a
// driver that cannot honor one.
func (q Query) CheckUnsupported(scheme string) error {
	if !q.IsEmpty() {
		return fmt.Errorf("%s locators do not support queries", scheme)
	}
	return nil
}

// Args holds driver-specific key=value arguments supplied by the caller.
type Args map[string]string

// ParseArgs converts "key=value" strings, as collected from repeated CLI
// flags, into an Args map.
func ParseArgs(pairs []string) (Args, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	args := make(Args, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("malformed driver argument %q (expected key=value)", pair)
		}
		if _, dup := args[key]; dup {
			return nil, fmt.Errorf("duplicate driver argument %q", key)
		}
		args[key] = value
	}
	return args, nil
}

// CheckUnsupported returns a validation error when any argument was supplied
// to a driver that accepts none.
func (a Args) CheckUnsupported(scheme string) error {
	if len(a) == 0 {
		return nil
	}
	keys := make([]string, 0, len(a))
	for key := range a {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return fmt.Errorf("%s locators do not accept driver arguments (got %s)", scheme, strings.Join(keys, ", "))
}

// TempStorage lists the temporary staging locations a transfer may use, as
// locator strings (for example a local directory or an s3:// prefix).
type TempStorage struct {
	Locations []string
}

// LocalDir returns the first local staging directory, falling back to the
// system temp directory when none was configured.
func (t TempStorage) LocalDir() string {
	for _, loc := range t.Locations {
		if !strings.Contains(loc, "://") {
			return strings.TrimPrefix(loc, "file:")
		}
	}
	return os.TempDir()
}
