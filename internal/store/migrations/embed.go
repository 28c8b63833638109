// Package migrations holds the versioned schema steps of every store table,
// one directory per table.
package migrations

import "embed"

//go:embed */*.sql
var FS embed.FS
