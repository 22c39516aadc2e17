// Package migrations embeds the goose migrations of the generation pipeline.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
