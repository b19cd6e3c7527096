// Package migrations embeds the database schema migrations.
package migrations

import "embed"

//go:embed postgres
var FS embed.FS
