// Package migrations carries the embedded schema files applied at startup.
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS
