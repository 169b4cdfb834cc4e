package migrations

import "embed"

// FS contains embedded SQLite migrations for the API cache.
//
//go:embed *.sql
var FS embed.FS
