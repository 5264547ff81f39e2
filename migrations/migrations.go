// Package migrations embeds the SQL schema so binaries can migrate without
// shipping the .sql files alongside them.
package migrations

import "embed"

// FS holds every *.up.sql / *.down.sql pair in this directory
//
//go:embed *.sql
var FS embed.FS
