package sav

import (
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/csv2sav/csv2sav/internal/dictionary"
)

// ───────────────────────────────────────────────────────────────────────
// ZSAV (zlib-compressed) data stream
// ───────────────────────────────────────────────────────────────────────
//
// Immediately after the dictionary terminator comes a 24-byte zheader:
//
//  Offset  Size  Field
//  ──────  ────  ──────────────────────────────────────
//  0       8     ZHeaderOfs    int64 LE, file offset of this zheader
//  8       8     ZTrailerOfs   int64 LE, file offset of the ztrailer
//  16      8     ZTrailerLen   int64 LE, byte length of the ztrailer
//
// ZTrailerOfs and ZTrailerLen are unknown until every row has been
// written, so the zheader is written as zeros and patched in place once
// Finish knows both values — the one seek this writer ever performs.
//
// The data itself is a sequence of independently-finalized zlib streams
// ("blocks") of the uncompressed row image (one 8-byte double per numeric
// segment, space-padded ASCII per string segment — no opcodes; Simple
// compression and ZSAV never share a data encoding, only the dictionary
// prefix). A block is closed as soon as a whole row brings it to
// zsavBlockSize bytes or more; rows are never split, so a block can exceed
// zsavBlockSize by less than one row. After the last block, a ztrailer
// records where to find each one:
//
//  Offset  Size  Field
//  ──────  ────  ──────────────────────────────────────
//  0       8     ZHeaderOfs        int64 LE, same as the zheader's copy
//  8       8     ZTrailerOfs       int64 LE, same as the zheader's copy
//  16      8     ZTrailerLen       int64 LE, same as the zheader's copy
//  24      8     Bias              float64 LE, always 100.0
//  32      8     Zero              int64 LE, reserved
//  40      4     BlockSize         int32 LE, zsavBlockSize
//  44      4     NBlocks           int32 LE
//
// followed by NBlocks 24-byte zblock_info entries:
//
//  Offset  Size  Field
//  ──────  ────  ──────────────────────────────────────
//  0       8     UncompressedOfs   int64 LE, cumulative uncompressed offset
//  8       8     CompressedOfs     int64 LE, file offset of this block
//  16      4     UncompressedSize  int32 LE
//  20      4     CompressedSize    int32 LE

const (
	zheaderSize       = 24
	ztrailerFixedSize = 48
	zblockInfoSize    = 24

	// zsavBlockSize is the uncompressed-byte budget per zlib member block.
	zsavBlockSize = 0x3ff000
)

type zblockInfo struct {
	uncompressedOfs  int64
	compressedOfs    int64
	uncompressedSize int32
	compressedSize   int32
}

// seekWriter is the capability ZsavWriter needs from its sink: it must be
// able to patch the zheader's placeholder fields once the trailer's
// position is known. Callers pass the destination file directly — never
// a bufio-wrapped writer, which cannot seek.
type seekWriter interface {
	io.Writer
	io.Seeker
}

// countingWriter tracks the absolute byte offset written so far, so
// ZsavWriter never needs to query the sink's position with a seek.
type countingWriter struct {
	w   io.Writer
	pos int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.pos += int64(n)
	return n, err
}

// ZsavWriter encodes rows under ZSAV (zlib) compression. The row count
// must be known exactly before construction (spec requires a two-pass
// count); NewZsavWriter writes ncases into the header up front.
type ZsavWriter struct {
	sink seekWriter
	cw   *countingWriter
	cols []dictionary.ColDef

	zheaderOfs int64

	cur              *zlib.Writer
	curUncompressedOfs int64
	curCompressedOfs   int64
	curUncompressedN   int
	blockFinished      bool

	totalUncompressed int64
	rowBuf            []byte
	blocks            []zblockInfo
}

// NewZsavWriter writes the dictionary (with the exact ncases supplied by
// the caller) and a placeholder zheader, then opens the first data block.
func NewZsavWriter(sink seekWriter, cols []dictionary.ColDef, ncases int) (*ZsavWriter, error) {
	cw := &countingWriter{w: sink}
	if err := writeDictionary(cw, cols, magicZSAV, compressionZlib, int32(ncases)); err != nil {
		return nil, err
	}

	z := &ZsavWriter{
		sink:   sink,
		cw:     cw,
		cols:   cols,
		rowBuf: make([]byte, dictionary.RowSegments(cols)*8),
	}
	z.zheaderOfs = cw.pos
	if _, err := cw.Write(make([]byte, zheaderSize)); err != nil {
		return nil, err
	}
	if err := z.startBlock(); err != nil {
		return nil, err
	}
	return z, nil
}

func (z *ZsavWriter) startBlock() error {
	z.curUncompressedOfs = z.totalUncompressed
	z.curCompressedOfs = z.cw.pos
	z.cur = zlib.NewWriter(z.cw)
	z.curUncompressedN = 0
	z.blockFinished = false
	return nil
}

func (z *ZsavWriter) finishBlock() error {
	if z.blockFinished {
		return nil
	}
	if err := z.cur.Close(); err != nil {
		return err
	}
	z.blocks = append(z.blocks, zblockInfo{
		uncompressedOfs:  z.curUncompressedOfs,
		compressedOfs:    z.curCompressedOfs,
		uncompressedSize: int32(z.curUncompressedN),
		compressedSize:   int32(z.cw.pos - z.curCompressedOfs),
	})
	z.blockFinished = true
	return nil
}

// WriteRow encodes one row's uncompressed image into the current zlib
// block, rolling over to a new block once zsavBlockSize is reached.
func (z *ZsavWriter) WriteRow(values []Value) error {
	if err := checkRow(z.cols, values); err != nil {
		return err
	}
	n, err := encodeRowImage(z.rowBuf, z.cols, values)
	if err != nil {
		return err
	}
	if _, err := z.cur.Write(z.rowBuf[:n]); err != nil {
		return err
	}
	z.curUncompressedN += n
	z.totalUncompressed += int64(n)

	if z.curUncompressedN >= zsavBlockSize {
		if err := z.finishBlock(); err != nil {
			return err
		}
		if err := z.startBlock(); err != nil {
			return err
		}
	}
	return nil
}

// Finish closes the final data block, writes the ztrailer, and seeks back
// to patch the zheader's ZTrailerOfs/ZTrailerLen fields.
func (z *ZsavWriter) Finish() error {
	if err := z.finishBlock(); err != nil {
		return err
	}

	ztrailerOfs := z.cw.pos
	ztrailerLen := int64(ztrailerFixedSize + len(z.blocks)*zblockInfoSize)

	trailer := make([]byte, ztrailerLen)
	binary.LittleEndian.PutUint64(trailer[0:8], uint64(z.zheaderOfs))
	binary.LittleEndian.PutUint64(trailer[8:16], uint64(ztrailerOfs))
	binary.LittleEndian.PutUint64(trailer[16:24], uint64(ztrailerLen))
	binary.LittleEndian.PutUint64(trailer[24:32], math.Float64bits(bias))
	binary.LittleEndian.PutUint64(trailer[32:40], 0)
	binary.LittleEndian.PutUint32(trailer[40:44], uint32(zsavBlockSize))
	binary.LittleEndian.PutUint32(trailer[44:48], uint32(len(z.blocks)))

	off := ztrailerFixedSize
	for _, b := range z.blocks {
		binary.LittleEndian.PutUint64(trailer[off:off+8], uint64(b.uncompressedOfs))
		binary.LittleEndian.PutUint64(trailer[off+8:off+16], uint64(b.compressedOfs))
		binary.LittleEndian.PutUint32(trailer[off+16:off+20], uint32(b.uncompressedSize))
		binary.LittleEndian.PutUint32(trailer[off+20:off+24], uint32(b.compressedSize))
		off += zblockInfoSize
	}

	if _, err := z.cw.Write(trailer); err != nil {
		return err
	}

	if _, err := z.sink.Seek(z.zheaderOfs, io.SeekStart); err != nil {
		return fmt.Errorf("sav: patch zheader: %w", err)
	}
	patch := make([]byte, zheaderSize)
	binary.LittleEndian.PutUint64(patch[0:8], uint64(z.zheaderOfs))
	binary.LittleEndian.PutUint64(patch[8:16], uint64(ztrailerOfs))
	binary.LittleEndian.PutUint64(patch[16:24], uint64(ztrailerLen))
	_, err := z.sink.Write(patch)
	return err
}

// encodeRowImage writes one row's raw (uncompressed) segment image into
// buf and returns the number of bytes used. Unlike Simple compression,
// missing numerics are spelled out as the SystemMissing bit pattern —
// there is no opcode stream to special-case them.
func encodeRowImage(buf []byte, cols []dictionary.ColDef, values []Value) (int, error) {
	pos := 0
	for i, col := range cols {
		v := values[i]
		if col.ColType.Numeric {
			n := SystemMissing
			if v.Number != nil {
				n = *v.Number
			}
			binary.LittleEndian.PutUint64(buf[pos:pos+8], math.Float64bits(n))
			pos += 8
			continue
		}
		width := col.ColType.Width
		total := col.ColType.Segments() * 8
		dst := buf[pos : pos+total]
		for i := range dst {
			dst[i] = ' '
		}
		copyLen := len(v.String)
		if copyLen > width {
			copyLen = width
		}
		copy(dst, v.String[:copyLen])
		pos += total
	}
	return pos, nil
}
