package hstore

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is wrapped by lookup failures for keys, groups and identifiers.
var ErrNotFound = errors.New("not found")

// ErrGroupNotFound is returned by Group.RemoveGroup when the group doesn't exist.
var ErrGroupNotFound = errors.New("group not found")

// ErrReadOnly is wrapped by mutations refused because of a read-only lock.
var ErrReadOnly = errors.New("read-only")

// ErrOutOfRange is wrapped by positional accesses past the end of a container.
var ErrOutOfRange = errors.New("index out of range")

// PathError reports a failure at a specific location within a store or a
// hierarchical container.
type PathError struct {
	Path string
	Key  string
	Msg  string
	Err  error
}

func Errf(path, key string, err error, format string, args ...any) error {
	return &PathError{path, key, fmt.Sprintf(format, args...), err}
}

func (e *PathError) Unwrap() error {
	return e.Err
}

func (e *PathError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Path)
	if e.Key != "" {
		buf.WriteByte('/')
		buf.WriteString(e.Key)
	}
	if e.Msg != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Msg)
		if e.Err != nil {
			buf.WriteString(": ")
			buf.WriteString(e.Err.Error())
		}
	} else if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}

// VersionError reports an on-disk version tag the reading code does not
// recognize. The typical recovery is using a compatible implementation
// version, not fixing the data, so it is distinct from CorruptError.
type VersionError struct {
	Path      string
	Version   string
	Supported []string
}

func NewVersionError(path, version string, supported ...string) error {
	return &VersionError{path, version, supported}
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("%s: unsupported store version %q (supported: %s)", e.Path, e.Version, strings.Join(e.Supported, ", "))
}

// CorruptError reports an inconsistency inside stored data itself (bad
// checksum, buffer sizes disagreeing with recorded counts).
type CorruptError struct {
	Path string
	Msg  string
	Err  error
}

func Corruptf(path string, err error, format string, args ...any) error {
	return &CorruptError{path, fmt.Sprintf(format, args...), err}
}

func (e *CorruptError) Unwrap() error {
	return e.Err
}

func (e *CorruptError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: corrupt data: %s: %v", e.Path, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: corrupt data: %s", e.Path, e.Msg)
}
