// Package db embeds the storefront schema migrations.
package db

import "embed"

// Migrations holds the ordered DDL files under migrations/. File names sort
// in application order.
//
//go:embed migrations/*.sql
var Migrations embed.FS
