package resources

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jonathan/queryforge/internal/db"
)

// InspectSchema reads the live schema of all user tables from the store,
// excluding the engine's own bookkeeping tables.
func InspectSchema(ctx context.Context, conn *sql.DB) (*DatabaseSchema, error) {
	rows, err := conn.QueryContext(ctx,
		`SELECT name FROM sqlite_master
		 WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		 ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		if db.EngineTables[name] {
			continue
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	schema := &DatabaseSchema{Tables: []Table{}}
	for _, name := range names {
		table, err := inspectTable(ctx, conn, name)
		if err != nil {
			return nil, err
		}
		schema.Tables = append(schema.Tables, *table)
	}
	return schema, nil
}

func inspectTable(ctx context.Context, conn *sql.DB, name string) (*Table, error) {
	table := &Table{
		Name:        name,
		Columns:     []Column{},
		PrimaryKeys: []string{},
		ForeignKeys: []ForeignKey{},
	}

	// PRAGMA statements do not accept bound parameters. Table names come from
	// sqlite_master, not user input, so quoting them directly is safe.
	rows, err := conn.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", name))
	if err != nil {
		return nil, fmt.Errorf("failed to inspect table %s: %w", name, err)
	}
	for rows.Next() {
		var cid int
		var colName, colType string
		var notNull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &colName, &colType, &notNull, &dflt, &pk); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan column of %s: %w", name, err)
		}
		col := Column{
			Name:       colName,
			Type:       colType,
			Nullable:   notNull == 0,
			PrimaryKey: pk != 0,
		}
		if dflt.Valid {
			col.DefaultValue = &dflt.String
		}
		table.Columns = append(table.Columns, col)
		if pk != 0 {
			table.PrimaryKeys = append(table.PrimaryKeys, colName)
		}
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("failed to inspect table %s: %w", name, err)
	}

	fkRows, err := conn.QueryContext(ctx, fmt.Sprintf("PRAGMA foreign_key_list(%q)", name))
	if err != nil {
		return nil, fmt.Errorf("failed to inspect foreign keys of %s: %w", name, err)
	}
	defer fkRows.Close()
	for fkRows.Next() {
		var id, seq int
		var refTable, from string
		var to, onUpdate, onDelete, match sql.NullString
		if err := fkRows.Scan(&id, &seq, &refTable, &from, &to, &onUpdate, &onDelete, &match); err != nil {
			return nil, fmt.Errorf("failed to scan foreign key of %s: %w", name, err)
		}
		fk := ForeignKey{
			Column:           from,
			ReferencedTable:  refTable,
			ReferencedColumn: to.String,
			OnUpdate:         orNoAction(onUpdate),
			OnDelete:         orNoAction(onDelete),
		}
		table.ForeignKeys = append(table.ForeignKeys, fk)
	}
	return table, fkRows.Err()
}

func orNoAction(s sql.NullString) string {
	if s.Valid && s.String != "" {
		return s.String
	}
	return "NO ACTION"
}
