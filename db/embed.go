// Package db carries the embedded schema applied at startup.
package db

import _ "embed"

// Schema is the full DDL for the service's tables, applied idempotently by
// the migration runner.
//
//go:embed migrations/001_schema.sql
var Schema string
