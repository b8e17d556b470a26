// Package sav encodes a column dictionary and a stream of row values into
// the SPSS System File (SAV) binary format, in either of two data-record
// shapes: Simple (inline byte-code compression) or ZSAV (zlib-compressed
// blocks with an exact row count and a trailing block index).
//
// Everything here is little-endian, matches the published SPSS
// system-file grammar byte for byte, and is written in a single forward
// pass (apart from ZSAV's one seek back to patch its zheader): a Writer is constructed from a column list (which fixes the
// dictionary immediately), fed rows in declaration order, and drained to
// its sink by Finish.
package sav

import (
	"errors"
	"fmt"

	"github.com/csv2sav/csv2sav/internal/dictionary"
)

// ErrFormatInvariant signals a programmer bug in the caller, not bad data:
// a row with the wrong arity, or a value whose variant doesn't match its
// column's declared type.
var ErrFormatInvariant = errors.New("sav: format invariant violated")

// SystemMissing is SPSS's sentinel for a missing numeric value: the most
// negative representable double.
const SystemMissing = -1.7976931348623157e+308 // -math.MaxFloat64, spelled out to avoid an import just for one constant.

// Value is one cell delivered to WriteRow: either a possibly-missing
// number, or a byte string (already truncated/trimmed by the caller —
// the encoder only pads or clips to the column's declared width).
type Value struct {
	IsString bool
	Number   *float64 // nil means system-missing; only meaningful if !IsString
	String   []byte   // only meaningful if IsString
}

// Num returns a numeric Value.
func Num(n float64) Value { return Value{Number: &n} }

// Missing returns a system-missing numeric Value.
func Missing() Value { return Value{} }

// Str returns a string Value.
func Str(b []byte) Value { return Value{IsString: true, String: b} }

// Writer is the shape shared by SimpleWriter and ZsavWriter: construct
// from a dictionary, stream rows in column order, call Finish exactly
// once.
type Writer interface {
	WriteRow(values []Value) error
	Finish() error
}

func checkRow(cols []dictionary.ColDef, values []Value) error {
	if len(values) != len(cols) {
		return fmt.Errorf("%w: row has %d values, dictionary has %d columns", ErrFormatInvariant, len(values), len(cols))
	}
	for i, col := range cols {
		v := values[i]
		if v.IsString != !col.ColType.Numeric {
			return fmt.Errorf("%w: column %d (%s) is numeric=%v but value is string=%v",
				ErrFormatInvariant, i, col.Name, col.ColType.Numeric, v.IsString)
		}
	}
	return nil
}
