package convert

import (
	"bytes"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/csv2sav/csv2sav/internal/schema"
)

func writeTempCSV(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestConvertSimple(t *testing.T) {
	dir := t.TempDir()
	in := writeTempCSV(t, dir, "in.csv", "name,age\nalice,30\nbob,25\n")
	out := filepath.Join(dir, "out.sav")

	var progressCalls int
	res, err := Convert(context.Background(), in, out, Options{
		SampleRows: schema.Unbounded,
		OnProgress: func(rowCount int, bytesRead, fileSize int64) { progressCalls++ },
	})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if res.RowsWritten != 2 {
		t.Errorf("RowsWritten = %d, want 2", res.RowsWritten)
	}
	if progressCalls == 0 {
		t.Errorf("expected at least one progress callback")
	}

	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !bytes.HasPrefix(b, []byte("$FL2")) {
		t.Errorf("output does not start with $FL2 magic")
	}
}

func TestConvertZsavExactNCases(t *testing.T) {
	dir := t.TempDir()
	in := writeTempCSV(t, dir, "in.csv", "v\n1\n2\n3\n")
	out := filepath.Join(dir, "out.zsav")

	res, err := Convert(context.Background(), in, out, Options{
		SampleRows: schema.Unbounded,
		Zsav:       true,
	})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if res.RowsWritten != 3 {
		t.Errorf("RowsWritten = %d, want 3", res.RowsWritten)
	}

	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !bytes.HasPrefix(b, []byte("$FL3")) {
		t.Errorf("output does not start with $FL3 magic")
	}
}

func TestConvertCancellationRemovesPartialOutput(t *testing.T) {
	dir := t.TempDir()
	in := writeTempCSV(t, dir, "in.csv", "v\n1\n2\n3\n")
	out := filepath.Join(dir, "out.sav")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Convert(ctx, in, out, Options{SampleRows: schema.Unbounded})
	if err != ErrCancelled {
		t.Fatalf("got %v, want ErrCancelled", err)
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Errorf("expected output file to be removed after cancellation")
	}
}

func TestConvertEmptySchemaError(t *testing.T) {
	dir := t.TempDir()
	in := writeTempCSV(t, dir, "in.csv", "")
	out := filepath.Join(dir, "out.sav")

	_, err := Convert(context.Background(), in, out, Options{SampleRows: schema.Unbounded})
	if err != schema.ErrEmptySchema {
		t.Fatalf("got %v, want ErrEmptySchema", err)
	}
}

func TestConvertGzipSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "in.csv.gz")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	gw := gzip.NewWriter(f)
	if _, err := gw.Write([]byte("v\n10\n20\n")); err != nil {
		t.Fatal(err)
	}
	if err := gw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(dir, "out.sav")
	res, err := Convert(context.Background(), path, out, Options{SampleRows: schema.Unbounded})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if res.RowsWritten != 2 {
		t.Errorf("RowsWritten = %d, want 2", res.RowsWritten)
	}
}

func TestConvertTruncatedColumnsReported(t *testing.T) {
	dir := t.TempDir()
	long := make([]byte, 40000)
	for i := range long {
		long[i] = 'x'
	}
	in := writeTempCSV(t, dir, "in.csv", "w\n"+string(long)+"\n")
	out := filepath.Join(dir, "out.sav")

	res, err := Convert(context.Background(), in, out, Options{SampleRows: schema.Unbounded})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if _, ok := res.TruncatedCols["w"]; !ok {
		t.Errorf("expected column %q reported truncated", "w")
	}
}
