package tabular

import "github.com/banshee-data/signal.viewer/internal/apperr"

// Record is one projected data row keyed by canonical key. Values are passed
// through as read; no numeric coercion happens here.
type Record map[string]string

// Project builds a Record from a raw row keyed by header name. Every key in
// m must be present in row; the first missing column fails the projection
// with a StructuralMismatch.
func Project(row map[string]string, m ColumnMapping) (Record, error) {
	rec := make(Record, m.Len())
	for _, key := range m.Keys() {
		col, _ := m.Get(key)
		v, ok := row[col]
		if !ok {
			return nil, apperr.Newf(apperr.StructuralMismatch, "Missing required column: %s", col)
		}
		rec[key] = v
	}
	return rec, nil
}
