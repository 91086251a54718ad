package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/shrek82/jormx/hydrate"
)

func newMappingCmd(a *app) *cobra.Command {
	var (
		driver    string
		dsn       string
		out       string
		overwrite bool
	)
	cmd := &cobra.Command{
		Use:   "mapping [tables]",
		Short: "Write YAML result set mappings for database tables",
		Long: "Introspects the given tables, or every table, and writes one mapping per table\n" +
			"selecting all its columns. Entity names are the CamelCase table names.",
		RunE: func(cmd *cobra.Command, tables []string) error {
			if driver == "" {
				driver = a.cfg.DB.Driver
			}
			if dsn == "" {
				dsn = a.cfg.DB.DSN
			}
			db, err := sql.Open(driver, dsn)
			if err != nil {
				return err
			}
			defer db.Close()

			docs, err := introspect(cmd.Context(), db, driver, tables)
			if err != nil {
				return err
			}
			if out == "" {
				return writeDocs(cmd.OutOrStdout(), docs)
			}
			if err := os.MkdirAll(out, 0o755); err != nil {
				return err
			}
			for _, td := range docs {
				path := filepath.Join(out, td.table+".yaml")
				if _, err := os.Stat(path); err == nil && !overwrite {
					a.log.Warn("%s exists, skipped (use --overwrite)", path)
					continue
				}
				f, err := os.Create(path)
				if err != nil {
					return err
				}
				err = writeDocs(f, []tableDoc{td})
				if cerr := f.Close(); err == nil {
					err = cerr
				}
				if err != nil {
					return err
				}
				a.log.Info("wrote %s", path)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&driver, "driver", "", "database driver (default db.driver)")
	cmd.Flags().StringVar(&dsn, "dsn", "", "data source name (default db.dsn)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output directory; stdout when empty")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace existing files")
	return cmd
}

type tableDoc struct {
	table string
	doc   hydrate.MappingDoc
}

func introspect(ctx context.Context, db *sql.DB, driver string, tables []string) ([]tableDoc, error) {
	if len(tables) == 0 {
		var err error
		if tables, err = fetchAllTables(ctx, db, driver); err != nil {
			return nil, err
		}
	}
	docs := make([]tableDoc, 0, len(tables))
	for _, table := range tables {
		cols, err := fetchColumns(ctx, db, driver, table)
		if err != nil {
			return nil, fmt.Errorf("table %s: %w", table, err)
		}
		if len(cols) == 0 {
			return nil, fmt.Errorf("table %s: no columns", table)
		}
		docs = append(docs, tableDoc{table: table, doc: mappingOf(table, cols)})
	}
	return docs, nil
}

// mappingOf maps every column of table to the field of the same CamelCase
// name on a single root entity.
func mappingOf(table string, cols []column) hydrate.MappingDoc {
	columns := make(map[string]string, len(cols))
	for _, c := range cols {
		columns[c.Name] = snakeToCamel(c.Name, true)
	}
	return hydrate.MappingDoc{
		Entities: []hydrate.EntityDoc{{
			Alias:   table,
			Entity:  snakeToCamel(table, true),
			Columns: columns,
		}},
	}
}

func writeDocs(w io.Writer, docs []tableDoc) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	for _, td := range docs {
		if err := enc.Encode(td.doc); err != nil {
			return err
		}
	}
	return enc.Close()
}
