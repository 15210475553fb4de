// Package db embeds the database schema and stored functions.
package db

import _ "embed"

// Schema holds the tables, the cash register summary view and the stored
// functions the POS calls. It is idempotent.
//
//go:embed migrations/001_schema.sql
var Schema string
