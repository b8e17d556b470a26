package sav

import "github.com/csv2sav/csv2sav/internal/dictionary"

// Open constructs the writer for the requested data-record shape. zsav
// selects ZSAV; ncases is only consulted for ZSAV, where it must be the
// exact row count the caller is about to stream (spec requires a
// two-pass count ahead of encoding).
func Open(w WriteSeeker, cols []dictionary.ColDef, zsav bool, ncases int) (Writer, error) {
	if !zsav {
		return NewSimpleWriter(w, cols)
	}
	return NewZsavWriter(w, cols, ncases)
}

// WriteSeeker is the sink capability the caller must provide. Plain SAV
// never seeks and would accept a bare io.Writer, but ZSAV always needs to
// patch its zheader after the fact, so Open asks for the stronger
// capability unconditionally — callers never need to know in advance
// which variant they will end up constructing.
type WriteSeeker = seekWriter
