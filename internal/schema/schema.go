// Package schema infers the column layout of a delimited text file by
// sampling its records.
//
// A CSV file carries no declared types: every field is a string until
// something decides otherwise. This package makes that decision by reading
// up to a caller-chosen number of records, classifying each column as
// numeric or string, and measuring the maximum trimmed byte width any
// string column will need. The result, a CsvSchema, is the sole input the
// dictionary builder and the SAV encoder need to lay out a system file.
package schema

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// MaxStringWidth is the largest byte width a SAV short string variable can
// declare. Observed widths beyond this are clamped and reported via
// CsvSchema.TruncatedCols.
const MaxStringWidth = 32767

// ErrEmptySchema is returned when the source has no header columns.
var ErrEmptySchema = errors.New("schema: source has no columns")

// ColType is the inferred storage type of a column.
type ColType struct {
	// Numeric is true for an 8-byte SPSS numeric column. When false the
	// column is a string of Width bytes.
	Numeric bool
	Width   int
}

// Segments returns the number of 8-byte SAV segments this column occupies:
// 1 for numeric, ⌈Width/8⌉ for string.
func (t ColType) Segments() int {
	if t.Numeric {
		return 1
	}
	return (t.Width + 7) / 8
}

// colInfo accumulates observations for one column during inference.
// Once isNumeric turns false it never turns back: a single non-numeric,
// non-empty field anywhere in the sample forces the column to String.
type colInfo struct {
	isNumeric bool
	maxLen    int
}

func newColInfo() colInfo {
	return colInfo{isNumeric: true}
}

// observe folds one field's trimmed value into the running classification.
// Empty fields (after trimming) never influence type or width.
func (c *colInfo) observe(field string) {
	trimmed := strings.TrimSpace(field)
	if trimmed == "" {
		return
	}
	if c.isNumeric {
		if _, err := strconv.ParseFloat(trimmed, 64); err != nil {
			c.isNumeric = false
		}
	}
	if n := len(trimmed); n > c.maxLen {
		c.maxLen = n
	}
}

func (c colInfo) colType() (ColType, bool) {
	if c.isNumeric {
		return ColType{Numeric: true}, false
	}
	width := c.maxLen
	if width < 1 {
		width = 1
	}
	truncated := width > MaxStringWidth
	if truncated {
		width = MaxStringWidth
	}
	return ColType{Width: width}, truncated
}

// CsvSchema is the immutable result of inference: one ColType per header,
// in header order, plus bookkeeping the driver reports to the caller.
type CsvSchema struct {
	Headers      []string
	ColTypes     []ColType
	FileSize     int64
	TruncatedCols map[string]struct{}
}

// Unbounded requests that InferSchema sample every record in the source
// rather than stopping after a fixed count. The production conversion path
// should prefer this: a bounded sample can misclassify a column whose
// non-numeric value appears only after the sampled prefix.
const Unbounded = 0

// InferSchema reads path twice only in the sense that callers typically
// infer once and convert once; this function itself performs a single
// pass: the header row seeds column names and arity, then up to
// sampleRows subsequent records (or all of them, if sampleRows is
// Unbounded) are folded into the per-column classification.
//
// cancel is checked once per record; a cancelled context aborts promptly
// with ctx.Err().
func InferSchema(ctx context.Context, path string, sampleRows int) (CsvSchema, error) {
	info, err := os.Stat(path)
	var fileSize int64
	if err == nil {
		fileSize = info.Size()
	}

	f, err := os.Open(path)
	if err != nil {
		return CsvSchema{}, fmt.Errorf("schema: open %s: %w", path, err)
	}
	defer f.Close()

	return inferFrom(ctx, f, fileSize, sampleRows)
}

// InferSchemaReader is InferSchema for a caller that has already opened
// its own source (e.g. to transparently decompress it first). fileSize
// is advisory: it only ever reaches the caller again via CsvSchema and
// is never used to bound reading.
func InferSchemaReader(ctx context.Context, r io.Reader, fileSize int64, sampleRows int) (CsvSchema, error) {
	return inferFrom(ctx, r, fileSize, sampleRows)
}

func inferFrom(ctx context.Context, r io.Reader, fileSize int64, sampleRows int) (CsvSchema, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	headerRec, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return CsvSchema{}, ErrEmptySchema
		}
		return CsvSchema{}, fmt.Errorf("schema: read header: %w", err)
	}
	if len(headerRec) == 0 {
		return CsvSchema{}, ErrEmptySchema
	}
	headers := append([]string(nil), headerRec...)

	infos := make([]colInfo, len(headers))
	for i := range infos {
		infos[i] = newColInfo()
	}

	sampled := 0
	for sampleRows == Unbounded || sampled < sampleRows {
		if err := ctx.Err(); err != nil {
			return CsvSchema{}, err
		}

		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return CsvSchema{}, fmt.Errorf("schema: read record %d: %w", sampled+1, err)
		}
		sampled++

		for i, field := range rec {
			if i >= len(infos) {
				break
			}
			infos[i].observe(field)
		}
	}

	colTypes := make([]ColType, len(infos))
	truncated := make(map[string]struct{})
	for i, ci := range infos {
		ct, wasTruncated := ci.colType()
		colTypes[i] = ct
		if wasTruncated {
			truncated[headers[i]] = struct{}{}
		}
	}

	return CsvSchema{
		Headers:       headers,
		ColTypes:      colTypes,
		FileSize:      fileSize,
		TruncatedCols: truncated,
	}, nil
}
