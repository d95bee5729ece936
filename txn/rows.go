package txn

import (
	"fmt"

	"mulldb/storage"
)

// rowToMap converts a stored row's positional values into a
// column-name-keyed map, the row representation §3 uses for
// BufferedOperation and WAL records.
func rowToMap(def *storage.TableDef, row storage.Row) map[string]any {
	m := make(map[string]any, len(def.Columns))
	for _, col := range def.Columns {
		m[col.Name] = storage.RowValue(row.Values, col.Ordinal)
	}
	return m
}

// applySets returns a copy of old with the given column/value pairs
// overlaid, used to compute an UPDATE's new_row from its SET clause.
func applySets(old map[string]any, sets map[string]any) map[string]any {
	out := make(map[string]any, len(old))
	for k, v := range old {
		out[k] = v
	}
	for k, v := range sets {
		out[k] = v
	}
	return out
}

// rowsEqual reports whether two column-keyed rows have identical values,
// used to drop updates that "net to no change" per §4.7 step 2.
func rowsEqual(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || fmt.Sprintf("%v", bv) != fmt.Sprintf("%v", v) {
			return false
		}
	}
	return true
}

// rowIdentity returns the primary key value of row when def has one,
// else a stable string built from every column — "primary key
// preferred, else full old-row key" per §4.7 step 2.
func rowIdentity(def *storage.TableDef, row map[string]any) any {
	if pkOrdinal := def.PrimaryKeyColumn(); pkOrdinal >= 0 {
		if col, ok := def.ColumnByOrdinal(pkOrdinal); ok {
			return fmt.Sprintf("pk:%v", row[col.Name])
		}
	}
	return fmt.Sprintf("row:%v", row)
}

// rowToValues converts a column-keyed map into the positional []any
// slice storage.Engine.Insert expects when called with columns == nil:
// one value per entry of def.Columns, in that slice's iteration order
// (which need not be contiguous ordinal order once columns have been
// dropped).
func rowToValues(def *storage.TableDef, row map[string]any) []any {
	values := make([]any, len(def.Columns))
	for i, col := range def.Columns {
		values[i] = row[col.Name]
	}
	return values
}

// rowFilter builds a predicate matching exactly the given column-keyed
// row, used to locate the physical row a buffered op refers to when
// flushing by identity (primary key equality, else full-row equality).
func rowFilter(def *storage.TableDef, row map[string]any) func(storage.Row) bool {
	if pkOrdinal := def.PrimaryKeyColumn(); pkOrdinal >= 0 {
		pkCol, _ := def.ColumnByOrdinal(pkOrdinal)
		want := row[pkCol.Name]
		return func(r storage.Row) bool {
			got := storage.RowValue(r.Values, pkOrdinal)
			return fmt.Sprintf("%v", got) == fmt.Sprintf("%v", want)
		}
	}
	want := rowToValues(def, row)
	return func(r storage.Row) bool {
		if len(r.Values) != len(want) {
			return false
		}
		for i := range want {
			if fmt.Sprintf("%v", r.Values[i]) != fmt.Sprintf("%v", want[i]) {
				return false
			}
		}
		return true
	}
}
