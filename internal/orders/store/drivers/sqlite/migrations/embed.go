// Package migrations embeds the SQL migration files for the orders
// database schema.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
