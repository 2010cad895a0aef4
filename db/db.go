package db

import "embed"

//go:embed migrations/*.sql
var Migrations embed.FS

//go:embed seed/evaluation/*.json
var SeedFiles embed.FS
