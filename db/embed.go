// Package db embeds the database schema.
package db

import _ "embed"

// Schema holds the idempotent DDL for the funnels, shop_sessions and
// statistics tables.
//
//go:embed migrations/001_schema.sql
var Schema string
