package persistence

import (
	"embed"
	"io/fs"
)

// MigrationFiles holds the goose migrations of the registry schema.
//
//go:embed schema/*.sql
var MigrationFiles embed.FS

// Migrations returns the migrations rooted at the schema directory, the layout
// goose expects.
func Migrations() fs.FS {
	sub, err := fs.Sub(MigrationFiles, "schema")
	if err != nil {
		panic(err)
	}
	return sub
}
