package migrations

import "embed"

// FS содержит миграции для обоих диалектов: postgres/ и sqlite/
//
//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS
