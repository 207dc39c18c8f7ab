// Package migrations holds the SQL schema for the SQLite token store backend.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
