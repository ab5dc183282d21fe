// Package schema embeds the migrations that materialise the tables and
// server-side functions the core's stores call. Schema DDL/DML is external
// per the core's own contract (see spec PURPOSE & SCOPE) - this package is
// one concrete adapter for Postgres, not part of the specified interfaces,
// and exists only so integration tests and real deployments have a ready
// migration set to apply.
package schema

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate applies every pending migration using db as the goose dialect
// connection. db must be a *sql.DB opened against the same Postgres
// instance the pgxpool-backed stores will subsequently use.
func Migrate(db *sql.DB) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("schema: set dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("schema: apply migrations: %w", err)
	}
	return nil
}
