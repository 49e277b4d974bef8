// Package migrations holds the SQLite schema, embedded into the binary and
// applied by golang-migrate.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
