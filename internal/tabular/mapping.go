// Package tabular resolves, validates and projects the loosely structured
// CSV (or XLSX) files that feed the ternary plot.
//
// A file has a title column, a class column and up to three value columns
// whose names are free. Header matching is case-insensitive but the original
// spelling is kept for output.
package tabular

import "strings"

// Canonical keys of a projected row.
const (
	KeyTitle  = "title"
	KeyClass  = "class"
	KeyValue1 = "value1"
	KeyValue2 = "value2"
	KeyValue3 = "value3"
)

// CanonicalKeys lists the canonical keys in output order.
var CanonicalKeys = [...]string{KeyTitle, KeyClass, KeyValue1, KeyValue2, KeyValue3}

// maxValueColumns is the number of addressable value columns.
const maxValueColumns = 3

// expectedColumns is the exact header width accepted by Validate.
const expectedColumns = 5

// ColumnMapping maps canonical keys to the header names that carry them.
// The zero value maps nothing.
type ColumnMapping struct {
	cols [len(CanonicalKeys)]string
	set  [len(CanonicalKeys)]bool
}

func keyIndex(key string) int {
	for i, k := range CanonicalKeys {
		if k == key {
			return i
		}
	}
	return -1
}

func (m *ColumnMapping) assign(key, column string) {
	i := keyIndex(key)
	m.cols[i] = column
	m.set[i] = true
}

// Get returns the header name mapped to key.
func (m ColumnMapping) Get(key string) (string, bool) {
	i := keyIndex(key)
	if i < 0 || !m.set[i] {
		return "", false
	}
	return m.cols[i], true
}

// Keys returns the mapped canonical keys in canonical order.
func (m ColumnMapping) Keys() []string {
	keys := make([]string, 0, len(CanonicalKeys))
	for i, k := range CanonicalKeys {
		if m.set[i] {
			keys = append(keys, k)
		}
	}
	return keys
}

// Len returns the number of mapped keys.
func (m ColumnMapping) Len() int {
	n := 0
	for _, ok := range m.set {
		if ok {
			n++
		}
	}
	return n
}

// ColumnNames returns the display name of every canonical key: the mapped
// header name, or the key itself when unmapped.
func (m ColumnMapping) ColumnNames() map[string]string {
	names := make(map[string]string, len(CanonicalKeys))
	for i, k := range CanonicalKeys {
		if m.set[i] {
			names[k] = m.cols[i]
		} else {
			names[k] = k
		}
	}
	return names
}

// IdentityMapping maps every canonical key to itself. It is the mapping of a
// file without a header row.
func IdentityMapping() ColumnMapping {
	var m ColumnMapping
	for _, k := range CanonicalKeys {
		m.assign(k, k)
	}
	return m
}

// Resolve derives the column mapping from a header row in a single ordered
// pass. The first entry equal to "title" (ignoring case) maps title, the
// first equal to "class" maps class, and every entry that is neither fills
// value1, value2 and value3 in order. Later title/class duplicates are
// ignored and value entries beyond the third are not addressable.
//
// A nil header yields IdentityMapping.
func Resolve(header []string) ColumnMapping {
	if header == nil {
		return IdentityMapping()
	}

	var m ColumnMapping
	values := 0
	for _, col := range header {
		switch folded := strings.ToLower(col); folded {
		case KeyTitle, KeyClass:
			if _, ok := m.Get(folded); !ok {
				m.assign(folded, col)
			}
		default:
			if values < maxValueColumns {
				m.assign(CanonicalKeys[2+values], col)
			}
			values++
		}
	}
	return m
}

// Validate reports whether header has the accepted shape: a title column,
// a class column (both ignoring case) and exactly five columns. A nil header
// is accepted.
func Validate(header []string) bool {
	if header == nil {
		return true
	}
	if len(header) != expectedColumns {
		return false
	}
	var hasTitle, hasClass bool
	for _, col := range header {
		switch strings.ToLower(col) {
		case KeyTitle:
			hasTitle = true
		case KeyClass:
			hasClass = true
		}
	}
	return hasTitle && hasClass
}
