// Package migrations embeds SQL migration files.
package migrations

import "embed"

// FS contiene las migraciones Postgres (audit log).
//
//go:embed *.sql
var FS embed.FS
