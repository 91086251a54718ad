package main

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"unicode"
)

// column is one column of an introspected table.
type column struct {
	Name   string
	DBType string
	IsPK   bool
}

// fetchAllTables lists the user tables of the database.
func fetchAllTables(ctx context.Context, db *sql.DB, driver string) ([]string, error) {
	var query string
	switch driver {
	case "sqlite3":
		query = "SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name"
	case "mysql":
		query = "SHOW TABLES"
	case "postgres":
		query = "SELECT tablename FROM pg_catalog.pg_tables WHERE schemaname != 'pg_catalog' AND schemaname != 'information_schema' ORDER BY tablename"
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// fetchColumns returns the columns of table in declaration order.
func fetchColumns(ctx context.Context, db *sql.DB, driver, table string) ([]column, error) {
	var cols []column

	switch driver {
	case "sqlite3":
		rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", table))
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				cid       int
				name      string
				dataType  string
				notnull   int
				dfltValue sql.NullString
				pk        int
			)
			if err := rows.Scan(&cid, &name, &dataType, &notnull, &dfltValue, &pk); err != nil {
				return nil, err
			}
			cols = append(cols, column{Name: name, DBType: dataType, IsPK: pk > 0})
		}
		return cols, rows.Err()

	case "mysql":
		rows, err := db.QueryContext(ctx, fmt.Sprintf("SHOW COLUMNS FROM `%s`", table))
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				field      string
				typ        string
				null       string
				key        string
				defaultVal sql.NullString
				extra      string
			)
			if err := rows.Scan(&field, &typ, &null, &key, &defaultVal, &extra); err != nil {
				return nil, err
			}
			cols = append(cols, column{Name: field, DBType: typ, IsPK: key == "PRI"})
		}
		return cols, rows.Err()

	case "postgres":
		rows, err := db.QueryContext(ctx, `
			SELECT c.column_name, c.data_type,
				EXISTS (
					SELECT 1 FROM information_schema.table_constraints tc
					JOIN information_schema.key_column_usage kcu
						ON kcu.constraint_name = tc.constraint_name AND kcu.table_schema = tc.table_schema
					WHERE tc.constraint_type = 'PRIMARY KEY'
						AND kcu.table_name = c.table_name AND kcu.column_name = c.column_name
				)
			FROM information_schema.columns c
			WHERE c.table_name = $1 AND c.table_schema = 'public'
			ORDER BY c.ordinal_position`, table)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		for rows.Next() {
			var c column
			if err := rows.Scan(&c.Name, &c.DBType, &c.IsPK); err != nil {
				return nil, err
			}
			cols = append(cols, c)
		}
		return cols, rows.Err()
	}
	return nil, fmt.Errorf("unsupported driver: %s", driver)
}

// snakeToCamel converts snake_case to CamelCase, spelling "id" as "ID".
func snakeToCamel(s string, upperFirst bool) string {
	parts := strings.Split(s, "_")
	for i := range parts {
		if i == 0 && !upperFirst {
			continue
		}
		if parts[i] == "id" {
			parts[i] = "ID"
		} else if len(parts[i]) > 0 {
			runes := []rune(parts[i])
			runes[0] = unicode.ToUpper(runes[0])
			parts[i] = string(runes)
		}
	}
	return strings.Join(parts, "")
}
