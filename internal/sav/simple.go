package sav

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/csv2sav/csv2sav/internal/dictionary"
)

// ───────────────────────────────────────────────────────────────────────
// Simple (byte-code) compression
// ───────────────────────────────────────────────────────────────────────
//
// The data stream is an interleaved sequence of 8-byte opcode blocks and
// raw 8-byte payload blocks. Every opcode in a block describes exactly
// one 8-byte segment of the row; any OP_RAW opcodes in that block are
// followed, in declaration order, by their 8-byte payloads — only once
// the whole 8-opcode block has been written. A writer that interleaves
// payloads inline with opcodes produces a file no conformant reader can
// open: the two buffers must be kept separate and flushed in sequence.
const (
	opRaw      byte = 0
	opEOF      byte = 252 // reserved — never emitted by this encoder
	opReserved byte = 253 // unused
	opSpaces   byte = 254
	opSysmis   byte = 255

	opcodeBlockLen = 8
)

// SimpleWriter encodes rows under Simple compression. Construct with
// NewSimpleWriter, stream rows with WriteRow, call Finish exactly once.
type SimpleWriter struct {
	w    io.Writer
	cols []dictionary.ColDef

	opcodes    [opcodeBlockLen]byte
	opcodeN    int
	rawPayload [][8]byte
}

// NewSimpleWriter writes the dictionary immediately (header, variable
// records, terminator) and returns a writer ready for WriteRow calls.
// ncases is always -1 for Simple compression: it never requires the
// caller to count rows up front.
func NewSimpleWriter(w io.Writer, cols []dictionary.ColDef) (*SimpleWriter, error) {
	if err := writeDictionary(w, cols, magicSAV, compressionSimple, unknownCaseCount); err != nil {
		return nil, err
	}
	return &SimpleWriter{w: w, cols: cols}, nil
}

// WriteRow encodes one row's columns, in declaration order, into the
// opcode/raw-payload stream.
func (s *SimpleWriter) WriteRow(values []Value) error {
	if err := checkRow(s.cols, values); err != nil {
		return err
	}
	for i, col := range s.cols {
		v := values[i]
		if col.ColType.Numeric {
			if err := s.emitNumeric(v.Number); err != nil {
				return err
			}
			continue
		}
		if err := s.emitString(v.String, col.ColType.Width); err != nil {
			return err
		}
	}
	return nil
}

func (s *SimpleWriter) emitNumeric(n *float64) error {
	if n == nil {
		return s.emitOpcode(opSysmis, nil)
	}
	shifted := *n + bias
	if shifted >= 1 && shifted <= 251 && shifted == math.Trunc(shifted) {
		return s.emitOpcode(byte(shifted), nil)
	}
	var payload [8]byte
	binary.LittleEndian.PutUint64(payload[:], math.Float64bits(*n))
	return s.emitOpcode(opRaw, &payload)
}

func (s *SimpleWriter) emitString(field []byte, width int) error {
	segments := (width + 7) / 8
	total := segments * 8
	buf := make([]byte, total)
	for i := range buf {
		buf[i] = ' '
	}
	copyLen := len(field)
	if copyLen > width {
		copyLen = width
	}
	copy(buf, field[:copyLen])

	for seg := 0; seg < segments; seg++ {
		chunk := buf[seg*8 : seg*8+8]
		if allSpaces(chunk) {
			if err := s.emitOpcode(opSpaces, nil); err != nil {
				return err
			}
			continue
		}
		var payload [8]byte
		copy(payload[:], chunk)
		if err := s.emitOpcode(opRaw, &payload); err != nil {
			return err
		}
	}
	return nil
}

func allSpaces(b []byte) bool {
	for _, c := range b {
		if c != ' ' {
			return false
		}
	}
	return true
}

// emitOpcode appends one opcode to the in-flight 8-opcode block, queueing
// its raw payload (if any) to be written after the block fills. Flushing
// happens automatically once 8 opcodes have accumulated.
func (s *SimpleWriter) emitOpcode(op byte, payload *[8]byte) error {
	s.opcodes[s.opcodeN] = op
	s.opcodeN++
	if payload != nil {
		s.rawPayload = append(s.rawPayload, *payload)
	}
	if s.opcodeN == opcodeBlockLen {
		return s.flush()
	}
	return nil
}

func (s *SimpleWriter) flush() error {
	if s.opcodeN == 0 {
		return nil
	}
	// Pad any unused opcode slots with zero bytes; never read back since
	// the reader stops after nominal_case_size × ncases segments.
	for i := s.opcodeN; i < opcodeBlockLen; i++ {
		s.opcodes[i] = 0
	}
	if _, err := s.w.Write(s.opcodes[:]); err != nil {
		return err
	}
	for _, p := range s.rawPayload {
		if _, err := s.w.Write(p[:]); err != nil {
			return err
		}
	}
	s.opcodeN = 0
	s.rawPayload = s.rawPayload[:0]
	return nil
}

// Finish flushes any partially-filled opcode block and the underlying
// sink, if it is a Flusher.
func (s *SimpleWriter) Finish() error {
	if err := s.flush(); err != nil {
		return err
	}
	return flushIfPossible(s.w)
}

type flusher interface {
	Flush() error
}

func flushIfPossible(w io.Writer) error {
	if f, ok := w.(flusher); ok {
		return f.Flush()
	}
	return nil
}
