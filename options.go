package hstore

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Options is the explicit configuration context passed to stores and to the
// container types built on top of them. There are no process-wide mutable
// singletons; DefaultOptions assembles the documented defaults and call sites
// override what they need.
type Options struct {
	// CompressThreshold is the payload size in bytes above which leaf values
	// are gzip-compressed. Negative disables compression.
	CompressThreshold int `yaml:"compress_threshold"`

	// StringWidth is the initial fixed character width of string columns in
	// flattened storage. Columns grow past it as needed.
	StringWidth int `yaml:"string_width"`

	// LockPolicy selects how read-only violations are reported.
	LockPolicy LockPolicy `yaml:"lock_policy"`

	// Default fill values per type family, used to backfill grown capacity
	// and to pad ragged reads.
	FillInt    int64   `yaml:"fill_int"`
	FillUint   uint64  `yaml:"fill_uint"`
	FillFloat  float64 `yaml:"fill_float"`
	FillString string  `yaml:"fill_string"`
}

// StringFill is the documented sentinel padding string columns when no
// explicit fill value was declared.
const StringFill = "_missing_"

func DefaultOptions() *Options {
	return &Options{
		CompressThreshold: 4096,
		StringWidth:       16,
		LockPolicy:        LockError,
		FillInt:           -1,
		FillUint:          0,
		FillFloat:         math.NaN(),
		FillString:        StringFill,
	}
}

// LoadOptions reads YAML overrides on top of DefaultOptions.
func LoadOptions(path string) (*Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	opts := DefaultOptions()
	if err := yaml.Unmarshal(data, opts); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return opts, nil
}

func (o *Options) orDefault() *Options {
	if o == nil {
		return DefaultOptions()
	}
	return o
}
