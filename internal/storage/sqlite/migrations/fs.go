// Package migrations embeds the SQLite schema migration files.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
