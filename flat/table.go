package flat

import "fmt"

// Table is a rectangular projection of a storage, one column per array.
type Table struct {
	Columns []string
	rows    [][]any
}

func (t *Table) NumRows() int {
	return len(t.rows)
}

func (t *Table) Row(i int) []any {
	return t.rows[i]
}

func (t *Table) Column(name string) ([]any, error) {
	for j, col := range t.Columns {
		if col == name {
			out := make([]any, len(t.rows))
			for i, row := range t.rows {
				out[i] = row[j]
			}
			return out, nil
		}
	}
	return nil, fmt.Errorf("no column %q", name)
}

// ToTable projects the storage onto a table. Without explode there is one
// row per chunk, per-element columns holding each chunk's slice. With
// explode there is one row per element, per-chunk columns repeated across
// their chunk's rows (a cross join of the two kinds).
func (s *Storage) ToTable(explode bool) (*Table, error) {
	t := &Table{Columns: s.ArrayNames()}
	if !explode {
		t.rows = make([][]any, 0, s.numChunks)
		for i := 0; i < s.numChunks; i++ {
			row := make([]any, len(t.Columns))
			for j, name := range t.Columns {
				v, err := s.GetArrayAt(name, i)
				if err != nil {
					return nil, err
				}
				row[j] = v
			}
			t.rows = append(t.rows, row)
		}
		return t, nil
	}

	t.rows = make([][]any, 0, s.numElements)
	for i := 0; i < s.numChunks; i++ {
		start, length := s.chunkBounds(i)
		for e := 0; e < length; e++ {
			row := make([]any, len(t.Columns))
			for j, name := range t.Columns {
				a := s.arrays[name]
				if a.per == PerChunk {
					row[j] = a.buf.getItem(i, len(a.shape) == 0)
				} else {
					row[j] = a.buf.getItem(start+e, len(a.shape) == 0)
				}
			}
			t.rows = append(t.rows, row)
		}
	}
	return t, nil
}
