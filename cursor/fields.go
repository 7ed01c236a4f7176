package cursor

import (
	"github.com/jacentio/spool/store"
)

// KeyField names a key attribute that may travel inside a cursor.
type KeyField string

// Key fields of the catalog table and its datatype index.
const (
	PK       KeyField = store.AttrPK
	SK       KeyField = store.AttrSK
	Datatype KeyField = store.AttrDatatype
)

// known lists every KeyField a cursor may carry.
var known = map[KeyField]bool{
	PK:       true,
	SK:       true,
	Datatype: true,
}

// Fields is the set of key fields preserved for one query or index.
type Fields struct {
	fields []KeyField
}

// Preserve returns the set of the given key fields. Unknown fields are dropped.
func Preserve(fields ...KeyField) Fields {
	var out Fields
	for _, f := range fields {
		if known[f] && !out.Contains(f) {
			out.fields = append(out.fields, f)
		}
	}
	return out
}

// Preserve sets for the queries the catalog paginates.
var (
	// TableKeys covers range queries on the base table.
	TableKeys = Preserve(PK, SK)

	// DatatypeKeys covers queries on the datatype index, whose markers
	// carry the index keys as well as the table keys.
	DatatypeKeys = Preserve(Datatype, PK, SK)
)

// Contains reports whether f is in the set.
func (s Fields) Contains(f KeyField) bool {
	for _, have := range s.fields {
		if have == f {
			return true
		}
	}
	return false
}

// Len returns the number of fields in the set.
func (s Fields) Len() int {
	return len(s.fields)
}
