// Package dictionary turns an inferred CsvSchema into the column
// definitions the SAV encoder needs: a short SPSS variable name, the
// original header kept as a display label, and the storage type.
package dictionary

import "github.com/csv2sav/csv2sav/internal/schema"

// ColDef is one SAV variable: a short name legal under SPSS's 8-byte
// identifier rules, the original CSV header preserved as its label, and
// its storage type.
type ColDef struct {
	Name    string
	Label   string
	ColType schema.ColType
}

// Build is a pure, total function from CsvSchema to the ordered ColDef
// list. Names are generated as "V" + 1-based index rather than derived
// from the header: SPSS short names are capped at 8 ASCII bytes and
// reject many characters legal in a CSV header, so deriving a name from
// the header would need its own validator and could still collide.
// Index-based names sidestep both problems; the header text is never
// lost, only demoted to label.
func Build(s schema.CsvSchema) []ColDef {
	defs := make([]ColDef, len(s.Headers))
	for i, header := range s.Headers {
		defs[i] = ColDef{
			Name:    shortName(i),
			Label:   header,
			ColType: s.ColTypes[i],
		}
	}
	return defs
}

func shortName(index int) string {
	// "V1", "V2", ... — always ≤ 8 bytes for any schema this package will
	// realistically see (a billion-column CSV is not a design target).
	n := index + 1
	buf := make([]byte, 0, 8)
	buf = append(buf, 'V')
	buf = appendInt(buf, n)
	return string(buf)
}

func appendInt(buf []byte, n int) []byte {
	if n == 0 {
		return append(buf, '0')
	}
	start := len(buf)
	for n > 0 {
		buf = append(buf, byte('0'+n%10))
		n /= 10
	}
	// digits were appended least-significant first; reverse them in place.
	end := len(buf) - 1
	for start < end {
		buf[start], buf[end] = buf[end], buf[start]
		start++
		end--
	}
	return buf
}

// RowSegments returns the total number of 8-byte segments one row
// occupies across all columns — the SAV nominal_case_size.
func RowSegments(defs []ColDef) int {
	total := 0
	for _, d := range defs {
		total += d.ColType.Segments()
	}
	return total
}
