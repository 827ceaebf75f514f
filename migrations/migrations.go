// Package migrations embeds the SQL schema migrations shipped with the binary
package migrations

import "embed"

// FS holds the goose migration files
//
//go:embed *.sql
var FS embed.FS
