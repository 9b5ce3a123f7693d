package migrate

import "embed"

// EmbeddedDir is the directory name inside Migrations.
const EmbeddedDir = "migrations"

// Migrations ships the backend schema inside the binary.
//
//go:embed migrations/*.sql
var Migrations embed.FS
