package storage

// catalog manages table schemas in memory. It is rebuilt from the WAL
// on startup — there is no separate catalog file.
type catalog struct {
	tables map[string]*TableDef
}

func newCatalog() *catalog {
	return &catalog{tables: make(map[string]*TableDef)}
}

func (c *catalog) createTable(name string, columns []ColumnDef) error {
	if _, exists := c.tables[name]; exists {
		return &TableExistsError{Name: name}
	}
	cols := make([]ColumnDef, len(columns))
	for i, col := range columns {
		col.Ordinal = i
		cols[i] = col
	}
	c.tables[name] = &TableDef{Name: name, Columns: cols, NextOrdinal: len(cols)}
	return nil
}

func (c *catalog) dropTable(name string) error {
	if _, exists := c.tables[name]; !exists {
		return &TableNotFoundError{Name: name}
	}
	delete(c.tables, name)
	return nil
}

func (c *catalog) getTable(name string) (*TableDef, bool) {
	def, ok := c.tables[name]
	return def, ok
}

// addColumn appends a new column to the table schema, assigning it the
// next never-reused ordinal.
func (c *catalog) addColumn(table string, col ColumnDef) error {
	def, ok := c.tables[table]
	if !ok {
		return &TableNotFoundError{Name: table}
	}
	for _, existing := range def.Columns {
		if existing.Name == col.Name {
			return &ColumnExistsError{Column: col.Name, Table: table}
		}
	}
	col.Ordinal = def.NextOrdinal
	def.Columns = append(def.Columns, col)
	def.NextOrdinal++
	return nil
}

// dropColumn removes a column from the table schema by name. The ordinal
// is never reused by a later ADD COLUMN.
func (c *catalog) dropColumn(table, colName string) error {
	def, ok := c.tables[table]
	if !ok {
		return &TableNotFoundError{Name: table}
	}
	idx := -1
	for i, col := range def.Columns {
		if col.Name == colName {
			idx = i
			break
		}
	}
	if idx < 0 {
		return &ColumnNotFoundError{Column: colName, Table: table}
	}
	def.Columns = append(def.Columns[:idx], def.Columns[idx+1:]...)
	return nil
}

// createIndex registers a new secondary index in the table schema.
func (c *catalog) createIndex(table string, idx IndexDef) error {
	def, ok := c.tables[table]
	if !ok {
		return &TableNotFoundError{Name: table}
	}
	for _, existing := range def.Indexes {
		if existing.Name == idx.Name {
			return &IndexExistsError{Name: idx.Name, Table: table}
		}
	}
	found := false
	for _, col := range def.Columns {
		if col.Name == idx.Column {
			found = true
			break
		}
	}
	if !found {
		return &ColumnNotFoundError{Column: idx.Column, Table: table}
	}
	def.Indexes = append(def.Indexes, idx)
	return nil
}

// dropIndex removes a secondary index from the table schema by name.
func (c *catalog) dropIndex(table, indexName string) error {
	def, ok := c.tables[table]
	if !ok {
		return &TableNotFoundError{Name: table}
	}
	idx := -1
	for i, ix := range def.Indexes {
		if ix.Name == indexName {
			idx = i
			break
		}
	}
	if idx < 0 {
		return &IndexNotFoundError{Name: indexName, Table: table}
	}
	def.Indexes = append(def.Indexes[:idx], def.Indexes[idx+1:]...)
	return nil
}
