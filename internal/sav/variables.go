package sav

import (
	"encoding/binary"
	"io"

	"github.com/csv2sav/csv2sav/internal/dictionary"
	"github.com/csv2sav/csv2sav/internal/schema"
)

// ───────────────────────────────────────────────────────────────────────
// Variable records
// ───────────────────────────────────────────────────────────────────────
//
// One primary record per column:
//
//  Offset  Size  Field
//  ──────  ────  ──────────────────────────────────────
//  0       4     RecType          int32 LE, always 2
//  4       4     TypeCode         int32 LE, 0 numeric / width string
//  8       4     HasLabel         int32 LE, 0 or 1
//  12      4     NMissingValues   int32 LE, always 0
//  16      4     PrintFormat      int32 LE, packed (see encodeFormat)
//  20      4     WriteFormat      int32 LE, same as PrintFormat
//  24      8     ShortName        ASCII, space-padded
//
// If HasLabel == 1, immediately followed by:
//  0       4     LabelLen         int32 LE, ≤ 255
//  4       N     Label            ASCII/UTF-8 bytes, N = LabelLen
//  4+N     P     Padding          zero, P = (4 - N%4) % 4, pads to a
//                                 4-byte boundary
//
// A string column spanning more than one segment gets segments-1
// continuation records after its primary (+label) record:
//
//  Offset  Size  Field
//  ──────  ────  ──────────────────────────────────────
//  0       4     RecType          int32 LE, always 2
//  4       4     TypeCode         int32 LE, always -1 (continuation)
//  8       4     HasLabel         int32 LE, always 0
//  12      4     NMissingValues   int32 LE, always 0
//  16      4     PrintFormat      int32 LE, always 0
//  20      4     WriteFormat      int32 LE, always 0
//  24      8     ShortName        ASCII spaces
//
// Terminated by a dictionary-terminator record: two int32s, 999 then 0.

const (
	recTypeVariable        int32 = 2
	recTypeDictTerminator  int32 = 999
	continuationTypeCode   int32 = -1
	maxLabelLen                  = 255

	// Print/write format type codes.
	fmtTypeNumeric int32 = 5 // "F"
	fmtTypeString  int32 = 1 // "A"
)

func writeVariableRecords(w io.Writer, cols []dictionary.ColDef) error {
	for _, col := range cols {
		if err := writeOneVariable(w, col); err != nil {
			return err
		}
	}
	return nil
}

func writeOneVariable(w io.Writer, col dictionary.ColDef) error {
	typeCode := int32(0)
	if !col.ColType.Numeric {
		typeCode = int32(col.ColType.Width)
	}
	hasLabel := int32(0)
	if col.Label != "" {
		hasLabel = 1
	}
	fmtCode := encodeFormat(col.ColType)

	rec := make([]byte, 32)
	binary.LittleEndian.PutUint32(rec[0:4], uint32(recTypeVariable))
	binary.LittleEndian.PutUint32(rec[4:8], uint32(typeCode))
	binary.LittleEndian.PutUint32(rec[8:12], uint32(hasLabel))
	binary.LittleEndian.PutUint32(rec[12:16], 0)
	binary.LittleEndian.PutUint32(rec[16:20], uint32(fmtCode))
	binary.LittleEndian.PutUint32(rec[20:24], uint32(fmtCode))
	writePadded(rec[24:32], col.Name)
	if _, err := w.Write(rec); err != nil {
		return err
	}

	if hasLabel == 1 {
		if err := writeLabel(w, col.Label); err != nil {
			return err
		}
	}

	for i := 1; i < col.ColType.Segments(); i++ {
		if err := writeContinuation(w); err != nil {
			return err
		}
	}
	return nil
}

func writeLabel(w io.Writer, label string) error {
	b := []byte(label)
	n := len(b)
	if n > maxLabelLen {
		n = maxLabelLen
		b = b[:n]
	}
	pad := (4 - n%4) % 4

	hdr := make([]byte, 4)
	binary.LittleEndian.PutUint32(hdr, uint32(n))
	if _, err := w.Write(hdr); err != nil {
		return err
	}
	if _, err := w.Write(b); err != nil {
		return err
	}
	if pad > 0 {
		if _, err := w.Write(make([]byte, pad)); err != nil {
			return err
		}
	}
	return nil
}

func writeContinuation(w io.Writer) error {
	rec := make([]byte, 32)
	binary.LittleEndian.PutUint32(rec[0:4], uint32(recTypeVariable))
	typeCode := continuationTypeCode
	binary.LittleEndian.PutUint32(rec[4:8], uint32(typeCode))
	// bytes [8:24] stay zero (HasLabel, NMissingValues, formats).
	writePadded(rec[24:32], "")
	_, err := w.Write(rec)
	return err
}

func writeDictTerminator(w io.Writer) error {
	rec := make([]byte, 8)
	binary.LittleEndian.PutUint32(rec[0:4], uint32(recTypeDictTerminator))
	binary.LittleEndian.PutUint32(rec[4:8], 0)
	_, err := w.Write(rec)
	return err
}

// encodeFormat packs a print/write format spec into a single int32:
// (type_code << 16) | (width << 8) | decimals. Numeric columns are
// F8.2; string columns are A<width> with width clamped to 255 (the
// format field's width byte is too narrow for the full 32767-byte range
// a variable record's TypeCode can carry).
func encodeFormat(ct schema.ColType) int32 {
	if ct.Numeric {
		return (fmtTypeNumeric << 16) | (8 << 8) | 2
	}
	width := ct.Width
	if width > 255 {
		width = 255
	}
	return (fmtTypeString << 16) | (int32(width) << 8)
}

// writeDictionary emits the file header, every column's variable record(s),
// and the dictionary terminator — the prefix shared byte-for-byte by both
// Simple and ZSAV data records.
func writeDictionary(w io.Writer, cols []dictionary.ColDef, magic string, compression, ncases int32) error {
	if err := writeHeader(w, headerParams{
		magic:           magic,
		nominalCaseSize: int32(dictionary.RowSegments(cols)),
		compression:     compression,
		ncases:          ncases,
		creationDate:    "01 Jan 70",
		creationTime:    "00:00:00",
	}); err != nil {
		return err
	}
	if err := writeVariableRecords(w, cols); err != nil {
		return err
	}
	return writeDictTerminator(w)
}
