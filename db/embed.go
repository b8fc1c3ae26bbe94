// Package db embeds the SQL migrations applied at startup.
package db

import "embed"

// Migrations holds migrations/*.sql, applied in lexical file name order.
//
//go:embed migrations/*.sql
var Migrations embed.FS
