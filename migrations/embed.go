// Package migrations embeds the SQL schema migrations so the server binary
// can apply them with goose at startup without a migrations directory on
// disk.
package migrations

import "embed"

// FS holds the embedded migration files.
//
//go:embed *.sql
var FS embed.FS
