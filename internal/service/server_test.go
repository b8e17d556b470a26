package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

func writeTempCSV(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestServerConvertAndStatus(t *testing.T) {
	dir := t.TempDir()
	in := writeTempCSV(t, dir, "in.csv", "a,b\n1,2\n3,4\n")
	out := filepath.Join(dir, "out.sav")

	s := NewServer()
	resp := s.Convert(context.Background(), ConvertRequest{Input: in, Output: out})
	if resp.Error != "" {
		t.Fatalf("Convert error: %s", resp.Error)
	}
	if resp.RowsWritten != 2 {
		t.Errorf("RowsWritten = %d, want 2", resp.RowsWritten)
	}

	status, err := s.Status(resp.RunID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Status != "done" {
		t.Errorf("status = %q, want done", status.Status)
	}
	if status.RowCount != 2 {
		t.Errorf("RowCount = %d, want 2", status.RowCount)
	}
}

func TestServerStatusUnknownRun(t *testing.T) {
	s := NewServer()
	if _, err := s.Status(uuid.New().String()); err == nil {
		t.Fatal("expected error for unknown run id")
	}
}

func TestServerCancelUnknownRun(t *testing.T) {
	s := NewServer()
	resp, err := s.Cancel(uuid.New().String())
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if resp.Found {
		t.Errorf("Found = true, want false for unregistered run id")
	}
}

func TestServerConvertMissingInput(t *testing.T) {
	dir := t.TempDir()
	s := NewServer()
	resp := s.Convert(context.Background(), ConvertRequest{
		Input:  filepath.Join(dir, "missing.csv"),
		Output: filepath.Join(dir, "out.sav"),
	})
	if resp.Error == "" {
		t.Fatal("expected error for missing input file")
	}
}
