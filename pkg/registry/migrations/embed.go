// Package migrations embeds the peer registry's golang-migrate source
// tree so the binary carries its own schema and never depends on a
// migrations directory being present on disk at runtime.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
