// Package migrations embeds the SQL migration files for the inventory
// database schema.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
