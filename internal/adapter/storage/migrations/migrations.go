// Package migrations embeds the schema of the job and log tables for every
// supported backend.
package migrations

import "embed"

// FS holds one directory of golang-migrate files per backend.
//
//go:embed sqlite/*.sql postgres/*.sql
var FS embed.FS

const (
	SQLiteDir   = "sqlite"
	PostgresDir = "postgres"
)
