// Package migrations embeds the SQL schema files so the binaries are
// self-contained and run with any working directory.
package migrations

import "embed"

// FS contains all *.sql migration files embedded at compile time.
//
//go:embed *.sql
var FS embed.FS
