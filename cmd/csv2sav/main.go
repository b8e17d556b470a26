// Command csv2sav is a one-shot CLI front end for internal/convert: it
// converts a single CSV file to SAV or ZSAV and reports progress to
// stderr.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/csv2sav/csv2sav/internal/convert"
	"github.com/csv2sav/csv2sav/internal/schema"
)

func main() {
	var (
		in         = flag.String("in", "", "input CSV file (required)")
		out        = flag.String("out", "", "output SAV/ZSAV file (required)")
		zsav       = flag.Bool("zsav", false, "write ZSAV (zlib-compressed) instead of plain SAV")
		sampleRows = flag.Int("sample", 0, "rows to sample for schema inference (0 = scan the whole file)")
		forceExact = flag.Bool("force-exact-rows", false, "count rows up front even for plain SAV")
		verbose    = flag.Bool("v", false, "print progress to stderr")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "csv2sav: convert a CSV file to SPSS System File format\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n  %s -in file.csv -out file.sav [-zsav] [-sample N] [-v]\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *in == "" || *out == "" {
		fmt.Fprintln(os.Stderr, "Error: -in and -out are required")
		flag.Usage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	opts := convert.Options{
		SampleRows:         *sampleRows,
		Zsav:               *zsav,
		ForceExactRowCount: *forceExact,
	}
	if *sampleRows == 0 {
		opts.SampleRows = schema.Unbounded
	}
	if *verbose {
		opts.OnProgress = func(rowCount int, bytesRead, fileSize int64) {
			fmt.Fprintf(os.Stderr, "csv2sav: %d rows, %d/%d bytes read\n", rowCount, bytesRead, fileSize)
		}
	}

	res, err := convert.Convert(ctx, *in, *out, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "csv2sav: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "csv2sav: wrote %d rows to %s (run %s)\n", res.RowsWritten, *out, res.RunID)
	if len(res.TruncatedCols) > 0 {
		fmt.Fprintf(os.Stderr, "csv2sav: warning: %d column(s) exceeded the maximum string width and were truncated:\n", len(res.TruncatedCols))
		for col := range res.TruncatedCols {
			fmt.Fprintf(os.Stderr, "  - %s\n", col)
		}
	}
}
