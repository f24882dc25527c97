// Package migrations embeds the goose migrations of the local consent database.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
