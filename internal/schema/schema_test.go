package schema

import (
	"context"
	"strings"
	"testing"
)

func TestInferSchemaReader(t *testing.T) {
	tests := []struct {
		name       string
		csv        string
		sampleRows int
		want       []ColType
		truncated  []string
	}{
		{
			name:       "all numeric",
			csv:        "a,b\n1,2.5\n3,4.5\n",
			sampleRows: Unbounded,
			want:       []ColType{{Numeric: true}, {Numeric: true}},
		},
		{
			name:       "mixed forces string",
			csv:        "a,b\n1,x\n2,y\n",
			sampleRows: Unbounded,
			want:       []ColType{{Numeric: true}, {Width: 1}},
		},
		{
			name:       "string width tracks max trimmed length",
			csv:        "name\nbo\nalexandra\n al \n",
			sampleRows: Unbounded,
			want:       []ColType{{Width: 9}},
		},
		{
			name:       "empty fields do not force type or width",
			csv:        "a\n\n\n42\n",
			sampleRows: Unbounded,
			want:       []ColType{{Numeric: true}},
		},
		{
			name:       "bounded sample misses a later surprise",
			csv:        "a\n1\n2\nnotanumber\n",
			sampleRows: 2,
			want:       []ColType{{Numeric: true}},
		},
		{
			name:       "all-empty column stays numeric",
			csv:        "a,b\n1,\n2,\n",
			sampleRows: Unbounded,
			want:       []ColType{{Numeric: true}, {Numeric: true}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := InferSchemaReader(context.Background(), strings.NewReader(tt.csv), 0, tt.sampleRows)
			if err != nil {
				t.Fatalf("InferSchemaReader: %v", err)
			}
			if len(got.ColTypes) != len(tt.want) {
				t.Fatalf("got %d columns, want %d", len(got.ColTypes), len(tt.want))
			}
			for i, want := range tt.want {
				if got.ColTypes[i] != want {
					t.Errorf("col %d: got %+v, want %+v", i, got.ColTypes[i], want)
				}
			}
		})
	}
}

func TestInferSchemaReaderEmptySource(t *testing.T) {
	_, err := InferSchemaReader(context.Background(), strings.NewReader(""), 0, Unbounded)
	if err != ErrEmptySchema {
		t.Fatalf("got %v, want ErrEmptySchema", err)
	}
}

func TestInferSchemaReaderWidthClamp(t *testing.T) {
	long := strings.Repeat("x", MaxStringWidth+100)
	csv := "a\n" + long + "\n"
	got, err := InferSchemaReader(context.Background(), strings.NewReader(csv), 0, Unbounded)
	if err != nil {
		t.Fatalf("InferSchemaReader: %v", err)
	}
	if got.ColTypes[0].Width != MaxStringWidth {
		t.Fatalf("got width %d, want %d", got.ColTypes[0].Width, MaxStringWidth)
	}
	if _, ok := got.TruncatedCols["a"]; !ok {
		t.Fatalf("expected column %q in TruncatedCols", "a")
	}
}

func TestInferSchemaReaderCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := InferSchemaReader(ctx, strings.NewReader("a\n1\n2\n"), 0, Unbounded)
	if err != context.Canceled {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}

func TestColTypeSegments(t *testing.T) {
	tests := []struct {
		ct   ColType
		want int
	}{
		{ColType{Numeric: true}, 1},
		{ColType{Width: 1}, 1},
		{ColType{Width: 8}, 1},
		{ColType{Width: 9}, 2},
		{ColType{Width: 16}, 2},
		{ColType{Width: 17}, 3},
	}
	for _, tt := range tests {
		if got := tt.ct.Segments(); got != tt.want {
			t.Errorf("%+v.Segments() = %d, want %d", tt.ct, got, tt.want)
		}
	}
}
