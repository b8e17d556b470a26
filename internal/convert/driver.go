// Package convert drives a single CSV-to-SAV/ZSAV conversion: it infers
// the schema, optionally counts rows (ZSAV requires an exact count), and
// streams the source through the SAV encoder while reporting progress
// and honoring cooperative cancellation.
package convert

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/csv2sav/csv2sav/internal/dictionary"
	"github.com/csv2sav/csv2sav/internal/sav"
	"github.com/csv2sav/csv2sav/internal/schema"
)

const (
	// csvBufSize is the buffered-read size for the CSV source.
	csvBufSize = 512 * 1024

	defaultCancelInterval   = 10000
	defaultProgressInterval = 10000
)

// ErrCancelled is returned when ctx is cancelled at a row-boundary check.
// Any partial output file is removed before this is returned.
var ErrCancelled = errors.New("convert: cancelled")

// wrapCancel normalizes a context cancellation observed outside the
// cooperative row-boundary checks (e.g. ctx already done when a phase
// starts) to ErrCancelled, so callers only ever need to check one sentinel.
func wrapCancel(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrCancelled
	}
	return err
}

// ProgressFunc is called at most once per ProgressInterval rows, plus a
// final call after the last row is written. It must be side-effect-free
// from the driver's perspective: the driver never blocks waiting on it.
type ProgressFunc func(rowCount int, bytesRead, fileSize int64)

// Options configures one conversion.
type Options struct {
	// SampleRows bounds the schema-inference pass; schema.Unbounded
	// samples the whole file, which is the safer default for production
	// conversions (a bounded sample can misclassify a late-surprising
	// column).
	SampleRows int

	// Zsav selects the ZSAV (zlib) data record instead of Simple
	// compression. ZSAV always requires an exact row count up front.
	Zsav bool

	// ForceExactRowCount runs the counting pass even when producing
	// plain SAV. For plain SAV the count is not used: the ncases field
	// stays -1 and the count is not passed to OnProgress or Result.
	ForceExactRowCount bool

	CancelInterval   int // 0 => defaultCancelInterval
	ProgressInterval int // 0 => defaultProgressInterval

	OnProgress ProgressFunc

	// RunID lets a caller pre-assign the correlation id (e.g. to register
	// a run in a status table before it starts) instead of letting Convert
	// generate one. The zero uuid.UUID means "generate a fresh one".
	RunID uuid.UUID
}

// Result summarizes a completed conversion.
type Result struct {
	RunID         uuid.UUID
	Schema        schema.CsvSchema
	RowsWritten   int
	TruncatedCols map[string]struct{}
}

// Convert reads inputPath, infers its schema, and writes outputPath as a
// SAV or ZSAV file per opts. On any error (including cancellation) a
// partially written outputPath is removed.
func Convert(ctx context.Context, inputPath, outputPath string, opts Options) (Result, error) {
	runID := opts.RunID
	if runID == uuid.Nil {
		runID = uuid.New()
	}
	cancelInterval := opts.CancelInterval
	if cancelInterval <= 0 {
		cancelInterval = defaultCancelInterval
	}
	progressInterval := opts.ProgressInterval
	if progressInterval <= 0 {
		progressInterval = defaultProgressInterval
	}

	sch, err := inferSchema(ctx, inputPath, opts.SampleRows)
	if err != nil {
		return Result{RunID: runID}, wrapCancel(err)
	}

	ncases := -1
	if opts.Zsav || opts.ForceExactRowCount {
		n, err := countRows(ctx, inputPath, cancelInterval)
		if err != nil {
			return Result{RunID: runID, Schema: sch}, wrapCancel(err)
		}
		ncases = n
	}

	rowsWritten, err := writeOutput(ctx, inputPath, outputPath, sch, opts, ncases, cancelInterval, progressInterval)
	if err != nil {
		os.Remove(outputPath)
		return Result{RunID: runID, Schema: sch}, wrapCancel(err)
	}

	return Result{
		RunID:         runID,
		Schema:        sch,
		RowsWritten:   rowsWritten,
		TruncatedCols: sch.TruncatedCols,
	}, nil
}

func inferSchema(ctx context.Context, path string, sampleRows int) (schema.CsvSchema, error) {
	src, _, fileSize, closeSrc, err := openSource(path)
	if err != nil {
		return schema.CsvSchema{}, err
	}
	defer closeSrc()
	return schema.InferSchemaReader(ctx, src, fileSize, sampleRows)
}

func countRows(ctx context.Context, path string, cancelInterval int) (int, error) {
	src, _, _, closeSrc, err := openSource(path)
	if err != nil {
		return 0, err
	}
	defer closeSrc()

	cr := csv.NewReader(bufio.NewReaderSize(src, csvBufSize))
	cr.FieldsPerRecord = -1
	if _, err := cr.Read(); err != nil { // header
		if errors.Is(err, io.EOF) {
			return 0, nil
		}
		return 0, fmt.Errorf("convert: count rows: read header: %w", err)
	}

	count := 0
	for {
		if count%cancelInterval == 0 && ctx.Err() != nil {
			return 0, ErrCancelled
		}
		_, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("convert: count rows: record %d: %w", count+1, err)
		}
		count++
	}
	return count, nil
}

func writeOutput(ctx context.Context, inputPath, outputPath string, sch schema.CsvSchema, opts Options, ncases, cancelInterval, progressInterval int) (int, error) {
	cols := dictionary.Build(sch)

	outFile, err := os.Create(outputPath)
	if err != nil {
		return 0, fmt.Errorf("convert: create %s: %w", outputPath, err)
	}
	defer outFile.Close()

	// sav.Open always wants seek capability (ZSAV patches its zheader in
	// place once the trailer is written), so the destination file is used
	// directly rather than through a buffering wrapper.
	writer, err := sav.Open(outFile, cols, opts.Zsav, ncases)
	if err != nil {
		return 0, fmt.Errorf("convert: open encoder: %w", err)
	}

	src, counting, fileSize, closeSrc, err := openSource(inputPath)
	if err != nil {
		return 0, err
	}
	defer closeSrc()

	cr := csv.NewReader(bufio.NewReaderSize(src, csvBufSize))
	cr.FieldsPerRecord = -1
	if _, err := cr.Read(); err != nil { // header; schema inference already proved one exists
		return 0, fmt.Errorf("convert: read header: %w", err)
	}

	values := make([]sav.Value, len(cols))
	rowCount := 0
	for {
		if rowCount%cancelInterval == 0 && ctx.Err() != nil {
			return rowCount, ErrCancelled
		}

		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return rowCount, fmt.Errorf("convert: read record %d: %w", rowCount+1, err)
		}
		rowCount++

		for i, col := range cols {
			field := ""
			if i < len(rec) {
				field = rec[i]
			}
			values[i] = cellValue(col, field)
		}

		if err := writer.WriteRow(values); err != nil {
			return rowCount, fmt.Errorf("convert: write row %d: %w", rowCount, err)
		}

		if rowCount%progressInterval == 0 && opts.OnProgress != nil {
			opts.OnProgress(rowCount, counting.BytesRead(), fileSize)
		}
	}

	if err := writer.Finish(); err != nil {
		return rowCount, fmt.Errorf("convert: finish: %w", err)
	}
	if opts.OnProgress != nil {
		opts.OnProgress(rowCount, counting.BytesRead(), fileSize)
	}
	return rowCount, nil
}

func cellValue(col dictionary.ColDef, field string) sav.Value {
	trimmed := strings.TrimSpace(field)
	if col.ColType.Numeric {
		if trimmed == "" {
			return sav.Missing()
		}
		n, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return sav.Missing()
		}
		return sav.Num(n)
	}
	return sav.Str(truncateUTF8([]byte(trimmed), col.ColType.Width))
}

// truncateUTF8 clips b to at most width bytes without splitting a
// multi-byte rune in half.
func truncateUTF8(b []byte, width int) []byte {
	if len(b) <= width {
		return b
	}
	end := width
	for end > 0 && !utf8.RuneStart(b[end]) {
		end--
	}
	return b[:end]
}

// countingReader tracks bytes read from the underlying source file, ahead
// of any gzip decompression, so progress reports the compressed-on-disk
// position regardless of format.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	atomic.AddInt64(&c.n, int64(n))
	return n, err
}

// BytesRead returns the running total; safe to call concurrently with Read.
func (c *countingReader) BytesRead() int64 {
	return atomic.LoadInt64(&c.n)
}

// maybeGzip transparently decompresses a gzip-magic source; anything else
// passes through unchanged.
func maybeGzip(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	magic, _ := br.Peek(2)
	if len(magic) >= 2 && magic[0] == 0x1F && magic[1] == 0x8B {
		if gr, err := gzip.NewReader(br); err == nil {
			return gr
		}
	}
	return br
}

// openSource opens path, stats its on-disk size, and wraps it for byte
// counting and transparent gzip decompression. The returned close func
// closes the underlying file; callers must call it exactly once.
func openSource(path string) (io.Reader, *countingReader, int64, func() error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, 0, nil, fmt.Errorf("convert: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, 0, nil, fmt.Errorf("convert: stat %s: %w", path, err)
	}
	cr := &countingReader{r: f}
	return maybeGzip(cr), cr, info.Size(), f.Close, nil
}
