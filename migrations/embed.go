// Package migrations bundles the PostgreSQL schema migrations into the binary.
package migrations

import "embed"

// FS holds every *.sql migration, applied in file name order
//
//go:embed *.sql
var FS embed.FS
