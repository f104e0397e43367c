package migrations

import "embed"

// Files contains the SQL migrations for the direct Postgres food backend,
// named NNN_description.sql and applied in lexical order.
//
//go:embed *.sql
var Files embed.FS
