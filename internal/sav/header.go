package sav

import (
	"encoding/binary"
	"io"
	"math"
)

// ───────────────────────────────────────────────────────────────────────
// File header — 176 bytes, identical shape for SAV and ZSAV
// ───────────────────────────────────────────────────────────────────────
//
//  Offset  Size  Field
//  ──────  ────  ──────────────────────────────────────────────
//  0       4     Magic            "$FL2" (SAV) or "$FL3" (ZSAV)
//  4       60    ProdName         ASCII, space-padded
//  64      4     LayoutCode       int32 LE, always 2
//  68      4     NominalCaseSize  int32 LE, Σ column segment counts
//  72      4     Compression      int32 LE, 0 none / 1 simple / 2 zlib
//  76      4     WeightIndex      int32 LE, always 0 (no weight variable)
//  80      4     NCases           int32 LE, -1 unknown or exact count
//  84      8     Bias             float64 LE, always 100.0
//  92      9     CreationDate     ASCII "DD MMM YY", space-padded
//  101     8     CreationTime     ASCII "HH:MM:SS", space-padded
//  109     64    FileLabel        ASCII, space-padded
//  173     3     Padding          zero
//
// Total: 176 bytes, ending exactly where the first variable record begins.

const (
	headerSize = 176

	magicSAV  = "$FL2"
	magicZSAV = "$FL3"

	prodName = "@(#) SPSS DATA FILE csv2sav"

	compressionNone   int32 = 0
	compressionSimple int32 = 1
	compressionZlib   int32 = 2

	// unknownCaseCount is the header's NCases value when the row count is
	// not known ahead of time (Simple compression never requires it).
	unknownCaseCount int32 = -1

	// bias is the fixed offset opcode-encoded numeric values are shifted
	// by so that small integers fit in a single byte (spec §4.4).
	bias = 100.0
)

type headerParams struct {
	magic            string
	nominalCaseSize  int32
	compression      int32
	ncases           int32
	creationDate     string // "DD MMM YY"
	creationTime     string // "HH:MM:SS"
	fileLabel        string
}

func writeHeader(w io.Writer, p headerParams) error {
	buf := make([]byte, headerSize)
	copy(buf[0:4], p.magic)
	writePadded(buf[4:64], prodName)
	binary.LittleEndian.PutUint32(buf[64:68], uint32(2)) // LayoutCode
	binary.LittleEndian.PutUint32(buf[68:72], uint32(p.nominalCaseSize))
	binary.LittleEndian.PutUint32(buf[72:76], uint32(p.compression))
	binary.LittleEndian.PutUint32(buf[76:80], 0) // WeightIndex
	binary.LittleEndian.PutUint32(buf[80:84], uint32(p.ncases))
	binary.LittleEndian.PutUint64(buf[84:92], math.Float64bits(bias))
	writePadded(buf[92:101], p.creationDate)
	writePadded(buf[101:109], p.creationTime)
	writePadded(buf[109:173], p.fileLabel)
	// buf[173:176] stays zero.

	_, err := w.Write(buf)
	return err
}

// writePadded copies as much of s as fits into dst and space-fills the
// remainder; it never writes past len(dst).
func writePadded(dst []byte, s string) {
	for i := range dst {
		dst[i] = ' '
	}
	n := copy(dst, s)
	_ = n
}
